// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package test provides assoc.Assoc implementations for use in tests.
package test

import (
	"context"
	"sync"

	"github.com/grailbio/bundlecache/assoc"
	"github.com/grailbio/bundlecache/errors"
)

// InmemoryAssoc is an assoc.Assoc that stores its mapping in memory.
type InmemoryAssoc struct {
	mu     sync.Mutex
	values map[string][]byte
	puts   int
}

// NewInmemoryAssoc returns a new, empty InmemoryAssoc.
func NewInmemoryAssoc() *InmemoryAssoc {
	return &InmemoryAssoc{values: make(map[string][]byte)}
}

// Get implements assoc.Assoc.
func (a *InmemoryAssoc) Get(ctx context.Context, k string) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.values[k]
	if !ok {
		return nil, errors.E("inmemassoc.get", k, errors.NotExist)
	}
	return append([]byte(nil), v...), nil
}

// Put implements assoc.Assoc.
func (a *InmemoryAssoc) Put(ctx context.Context, k string, expect, v []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	cur, ok := a.values[k]
	if !assoc.Matches(expect, cur, ok) {
		return errors.E("inmemassoc.put", k, errors.Precondition)
	}
	a.values[k] = append([]byte(nil), v...)
	a.puts++
	return nil
}

// Keys returns the number of mapped keys.
func (a *InmemoryAssoc) Keys() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.values)
}

// Puts returns the number of successful Put calls.
func (a *InmemoryAssoc) Puts() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.puts
}

// Set stores a raw value at key k, bypassing any encoding. It is
// used to plant corrupt or foreign entries.
func (a *InmemoryAssoc) Set(k string, v []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.values[k] = v
}

// ErrAssoc wraps an assoc.Assoc, failing operations with the
// configured errors.
type ErrAssoc struct {
	assoc.Assoc
	GetErr, PutErr error
}

// Get returns GetErr if it is set, and otherwise calls the underlying
// assoc.
func (e *ErrAssoc) Get(ctx context.Context, k string) ([]byte, error) {
	if e.GetErr != nil {
		return nil, e.GetErr
	}
	return e.Assoc.Get(ctx, k)
}

// Put returns PutErr if it is set, and otherwise calls the underlying
// assoc.
func (e *ErrAssoc) Put(ctx context.Context, k string, expect, v []byte) error {
	if e.PutErr != nil {
		return e.PutErr
	}
	return e.Assoc.Put(ctx, k, expect, v)
}
