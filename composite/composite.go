// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package composite stores the byte content of composite artifacts in
// a blob bucket. Artifacts are addressed by name; the object key is
// derived from the name by Path.
package composite

import (
	"bytes"
	"context"
	"io/ioutil"
	"path"
	"strings"
	"time"

	"github.com/grailbio/bundlecache/blob"
	"github.com/grailbio/bundlecache/errors"
	"github.com/grailbio/bundlecache/log"
	"github.com/grailbio/bundlecache/metrics"
)

// DefaultBasePath is the object key prefix used when none is configured.
const DefaultBasePath = "ClientDependency/Files/"

// Store reads and writes composite artifacts. A Store with a nil
// Bucket is disabled: nothing is persisted and every read misses.
type Store struct {
	// Bucket holds the artifacts.
	Bucket blob.Bucket
	// BasePath prefixes every object key.
	BasePath string
	// Log receives write failures and degraded reads.
	Log *log.Logger
}

// New returns a store over bucket using DefaultBasePath.
func New(bucket blob.Bucket, logger *log.Logger) *Store {
	return &Store{Bucket: bucket, BasePath: DefaultBasePath, Log: logger}
}

// Enabled tells whether artifacts are persisted.
func (s *Store) Enabled() bool {
	return s != nil && s.Bucket != nil
}

// Path returns the object key for the artifact named name: the final
// element of name with each '-' replaced by '/', under the trimmed
// base path. For example, with base path "Files/", the artifact
// "3-abc123.js" is stored at "Files/3/abc123.js".
func (s *Store) Path(name string) string {
	file := strings.Replace(path.Base(name), "-", "/", -1)
	base := strings.Trim(s.BasePath, "/")
	if base == "" {
		return file
	}
	return base + "/" + file
}

// Save stores p as the artifact named name and returns the object key
// it was written to. Failures are logged and returned; they are not
// retried.
func (s *Store) Save(ctx context.Context, p []byte, name string) (string, error) {
	if !s.Enabled() {
		return "", errors.E("composite.save", name, errors.Unavailable, errors.New("no bucket configured"))
	}
	if name == "" {
		return "", errors.E("composite.save", errors.Invalid, errors.New("empty artifact name"))
	}
	key := s.Path(name)
	start := time.Now()
	err := s.Bucket.Put(ctx, key, int64(len(p)), bytes.NewReader(p))
	metrics.GetCompositeOpLatencySecondsHistogram(ctx, "save").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.GetCompositeWritesTotalCounter(ctx, metrics.Error).Inc()
		s.Log.Errorf("composite: save %s to %s%s: %v", name, s.Bucket.Location(), key, err)
		return "", errors.E("composite.save", name, key, err)
	}
	metrics.GetCompositeWritesTotalCounter(ctx, metrics.Ok).Inc()
	s.Log.Debugf("composite: saved %s to %s%s (%d bytes)", name, s.Bucket.Location(), key, len(p))
	return key, nil
}

// Read returns the bytes of the artifact named name. It returns false
// if the store is disabled or if the artifact cannot be read for any
// reason, including that it does not exist.
func (s *Store) Read(ctx context.Context, name string) ([]byte, bool) {
	if !s.Enabled() || name == "" {
		return nil, false
	}
	key := s.Path(name)
	start := time.Now()
	p, err := s.read(ctx, key)
	metrics.GetCompositeOpLatencySecondsHistogram(ctx, "read").Observe(time.Since(start).Seconds())
	switch {
	case err == nil:
		metrics.GetCompositeReadsTotalCounter(ctx, metrics.Hit).Inc()
		return p, true
	case errors.Is(errors.NotExist, err):
		metrics.GetCompositeReadsTotalCounter(ctx, metrics.Miss).Inc()
		s.Log.Debugf("composite: %s not found at %s%s", name, s.Bucket.Location(), key)
	default:
		metrics.GetCompositeReadsTotalCounter(ctx, metrics.Error).Inc()
		s.Log.Errorf("composite: read %s from %s%s: %v", name, s.Bucket.Location(), key, err)
	}
	return nil, false
}

func (s *Store) read(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.Bucket.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return ioutil.ReadAll(rc)
}
