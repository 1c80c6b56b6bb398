// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package cache implements the composite file cache: it ties the file
// map, which records which artifact was built for a set of files, to
// the composite store, which holds the artifacts' bytes.
//
// A typical request computes a key for its files, looks up the record
// for the key, and serves the record's bytes if they are available.
// Otherwise the caller rebuilds the artifact and commits it:
//
//	key, _ := c.CreateMapIfAbsent(ctx, files, version)
//	p, ok, _ := c.Resolve(ctx, key, version, "")
//	if !ok {
//		p = build(files)
//		c.Commit(ctx, key, "", files, p, composite.JavaScript, version)
//	}
package cache

import (
	"context"

	"github.com/grailbio/base/limiter"
	"github.com/grailbio/bundlecache"
	"github.com/grailbio/bundlecache/composite"
	"github.com/grailbio/bundlecache/filemap"
	"github.com/grailbio/bundlecache/log"
	"github.com/grailbio/bundlecache/metrics"
)

// Cache is the composite file cache. Its methods are safe for
// concurrent use.
type Cache struct {
	// Map stores the file map records.
	Map *filemap.Map

	// Files stores the artifacts. A disabled store turns the cache
	// into a key and record service: nothing is saved and no bytes
	// are ever available.
	Files *composite.Store

	// Log receives the cache's own diagnostics.
	Log *log.Logger

	// ReadLim limits the number of concurrent artifact reads.
	// No read limits are applied when ReadLim is nil.
	ReadLim *limiter.Limiter

	// WriteLim limits the number of concurrent artifact writes.
	// No write limits are applied when WriteLim is nil.
	WriteLim *limiter.Limiter
}

// New returns a cache over the provided map and store.
func New(m *filemap.Map, files *composite.Store, logger *log.Logger) *Cache {
	return &Cache{Map: m, Files: files, Log: logger}
}

// Key returns the file key for files and version.
func (c *Cache) Key(files []string, version int) string {
	return bundlecache.Key(files, version)
}

// Lookup returns the record for key, version and compression. A
// reservation is returned as found; its bytes are never available.
func (c *Cache) Lookup(ctx context.Context, key string, version int, compression string) (*bundlecache.Record, bool, error) {
	rec, ok, err := c.Map.Get(ctx, key, version, compression)
	switch {
	case err != nil:
		return nil, false, err
	case !ok:
		metrics.GetCacheLookupsTotalCounter(ctx, metrics.Miss).Inc()
	case rec.Reserved():
		metrics.GetCacheLookupsTotalCounter(ctx, metrics.Reserved).Inc()
	default:
		metrics.GetCacheLookupsTotalCounter(ctx, metrics.Hit).Inc()
	}
	return rec, ok, nil
}

// Update records name as the artifact built for key, compression and
// version, replacing any existing record.
func (c *Cache) Update(ctx context.Context, key, compression string, files []string, name string, version int) error {
	return c.Map.Put(ctx, key, compression, files, name, version)
}

// UpdateIf is like Update, but succeeds only if the artifact currently
// recorded is expectName; see filemap.Map.PutIf.
func (c *Cache) UpdateIf(ctx context.Context, expectName, key, compression string, files []string, name string, version int) error {
	return c.Map.PutIf(ctx, expectName, key, compression, files, name, version)
}

// CreateMapIfAbsent returns the key for files and version, reserving a
// record for it if none exists.
func (c *Cache) CreateMapIfAbsent(ctx context.Context, files []string, version int) (string, error) {
	return c.Map.CreateMapIfAbsent(ctx, files, version)
}

// DependentFiles returns the files recorded for key and version.
func (c *Cache) DependentFiles(ctx context.Context, key string, version int) ([]string, bool, error) {
	return c.Map.DependentFiles(ctx, key, version)
}

// Enabled tells whether artifacts are persisted. Cache implements
// bundlecache.FileReader.
func (c *Cache) Enabled() bool {
	return c.Files.Enabled()
}

// Read reads the artifact named name, subject to ReadLim.
func (c *Cache) Read(ctx context.Context, name string) ([]byte, bool) {
	if c.ReadLim != nil {
		if err := c.ReadLim.Acquire(ctx, 1); err != nil {
			c.Log.Debugf("cache: read %s: %v", name, err)
			return nil, false
		}
		defer c.ReadLim.Release(1)
	}
	return c.Files.Read(ctx, name)
}

// Bytes returns the bytes of rec's artifact, or false if they are not
// available.
func (c *Cache) Bytes(ctx context.Context, rec *bundlecache.Record) ([]byte, bool) {
	if rec == nil {
		return nil, false
	}
	return rec.Bytes(ctx, c)
}

// Save stores p as a new artifact of the given kind and version and
// returns its name. When artifacts are not persisted, Save stores
// nothing and returns the empty name.
func (c *Cache) Save(ctx context.Context, p []byte, kind composite.Kind, version int) (string, error) {
	if !c.Files.Enabled() {
		return "", nil
	}
	if c.WriteLim != nil {
		if err := c.WriteLim.Acquire(ctx, 1); err != nil {
			return "", err
		}
		defer c.WriteLim.Release(1)
	}
	name := composite.NewFileName(version, kind)
	if _, err := c.Files.Save(ctx, p, name); err != nil {
		return "", err
	}
	return name, nil
}

// Commit saves p as the artifact for key, compression and version,
// and records it in the map. It returns the artifact's name, which is
// empty if artifacts are not persisted; in that case the map is left
// untouched.
func (c *Cache) Commit(ctx context.Context, key, compression string, files []string, p []byte, kind composite.Kind, version int) (string, error) {
	name, err := c.Save(ctx, p, kind, version)
	if err != nil || name == "" {
		return "", err
	}
	if err := c.Update(ctx, key, compression, files, name, version); err != nil {
		return "", err
	}
	return name, nil
}

// Resolve returns the artifact bytes recorded for key, version and
// compression. It returns false when there is no record, when the
// record is a reservation, or when the bytes cannot be read.
func (c *Cache) Resolve(ctx context.Context, key string, version int, compression string) ([]byte, bool, error) {
	rec, ok, err := c.Lookup(ctx, key, version, compression)
	if err != nil || !ok {
		return nil, false, err
	}
	p, ok := c.Bytes(ctx, rec)
	return p, ok, nil
}
