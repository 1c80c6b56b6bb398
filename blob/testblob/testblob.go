// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package testblob implements a blob bucket appropriate for testing.
package testblob

import (
	"bytes"
	"context"
	"io"
	"io/ioutil"
	"sort"
	"sync"

	"github.com/grailbio/bundlecache/blob"
	"github.com/grailbio/bundlecache/errors"
)

// Bucket is an in-memory blob.Bucket.
type Bucket struct {
	location string

	mu      sync.Mutex
	objects map[string][]byte
	gets    int
}

// New returns a new, empty bucket whose location is
// {scheme}://{name}/.
func New(scheme, name string) *Bucket {
	return &Bucket{
		location: scheme + "://" + name + "/",
		objects:  make(map[string][]byte),
	}
}

// Get returns the object stored at key.
func (b *Bucket) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gets++
	p, ok := b.objects[key]
	if !ok {
		return nil, errors.E("testblob.get", b.location+key, errors.NotExist)
	}
	return ioutil.NopCloser(bytes.NewReader(p)), nil
}

// Put stores the contents of body at key.
func (b *Bucket) Put(ctx context.Context, key string, size int64, body io.Reader) error {
	p, err := ioutil.ReadAll(body)
	if err != nil {
		return errors.E("testblob.put", b.location+key, err)
	}
	if size > 0 && int64(len(p)) != size {
		return errors.E("testblob.put", b.location+key, errors.Invalid,
			errors.Errorf("expected %d bytes, got %d", size, len(p)))
	}
	b.mu.Lock()
	b.objects[key] = p
	b.mu.Unlock()
	return nil
}

// Location returns the bucket's URL.
func (b *Bucket) Location() string {
	return b.location
}

// Object returns the raw contents stored at key.
func (b *Bucket) Object(key string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.objects[key]
	return p, ok
}

// Keys returns the sorted keys of all stored objects.
func (b *Bucket) Keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Gets returns the number of Get calls served by the bucket.
func (b *Bucket) Gets() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gets
}

// ErrBucket is a blob.Bucket whose calls fail with the configured
// errors. Nil errors fall through to the underlying bucket.
type ErrBucket struct {
	blob.Bucket
	GetErr, PutErr error
}

// Get implements blob.Bucket.
func (b ErrBucket) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if b.GetErr != nil {
		return nil, b.GetErr
	}
	return b.Bucket.Get(ctx, key)
}

// Put implements blob.Bucket.
func (b ErrBucket) Put(ctx context.Context, key string, size int64, body io.Reader) error {
	if b.PutErr != nil {
		return b.PutErr
	}
	return b.Bucket.Put(ctx, key, size, body)
}
