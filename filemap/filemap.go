// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package filemap maintains the map from file keys to composite file
// records. Records are stored as JSON documents in an assoc.Assoc,
// one per file key and compression type.
package filemap

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/grailbio/bundlecache"
	"github.com/grailbio/bundlecache/assoc"
	"github.com/grailbio/bundlecache/errors"
	"github.com/grailbio/bundlecache/log"
	"github.com/grailbio/bundlecache/metrics"
)

// DefaultFolder is the index key prefix used when none is configured.
const DefaultFolder = "~/ClientDependency/Data"

// IndexKey returns the assoc key under which the record for fileKey
// and compression is stored: {folder}/Maps/{fileKey}.json, suffixed
// with .{compression} if compression is nonempty.
func IndexKey(folder, fileKey, compression string) string {
	k := strings.TrimRight(folder, "/") + "/Maps/" + fileKey + ".json"
	if compression != "" {
		k += "." + compression
	}
	return k
}

// Map is a file map stored in an assoc.Assoc. Reads never fail on
// account of the store: missing, stale and unreadable records are
// reported as misses. Writes report failures to the caller.
type Map struct {
	// Assoc stores the records.
	Assoc assoc.Assoc
	// Folder prefixes every index key.
	Folder string
	// Log receives write failures and degraded reads.
	Log *log.Logger
}

// New returns a map over a using DefaultFolder.
func New(a assoc.Assoc, logger *log.Logger) *Map {
	return &Map{Assoc: a, Folder: DefaultFolder, Log: logger}
}

// Get returns the record stored for fileKey and compression. It
// returns false if no record is stored, if the stored record has a
// version other than version, or if the record cannot be read.
func (m *Map) Get(ctx context.Context, fileKey string, version int, compression string) (*bundlecache.Record, bool, error) {
	if fileKey == "" {
		return nil, false, errors.E("filemap.get", errors.Invalid, errors.New("empty file key"))
	}
	k := IndexKey(m.Folder, fileKey, compression)
	rec, _, err := m.get(ctx, k)
	switch {
	case errors.Is(errors.NotExist, err):
		m.Log.Debugf("filemap: %s: no record", k)
		return nil, false, nil
	case err != nil:
		m.Log.Errorf("filemap: %s: %v", k, err)
		return nil, false, nil
	case rec.Version != version:
		m.Log.Debugf("filemap: %s: stale record %s, want version %d", k, rec, version)
		return nil, false, nil
	}
	return rec, true, nil
}

// get retrieves and decodes the record stored at k, also returning its
// raw value. A corrupt record is returned as an errors.Invalid error
// along with the raw value.
func (m *Map) get(ctx context.Context, k string) (*bundlecache.Record, []byte, error) {
	start := time.Now()
	p, err := m.Assoc.Get(ctx, k)
	metrics.GetFilemapOpLatencySecondsHistogram(ctx, "get").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, nil, err
	}
	rec := new(bundlecache.Record)
	if err := json.Unmarshal(p, rec); err != nil {
		return nil, p, errors.E("filemap.decode", k, errors.Invalid, err)
	}
	return rec, p, nil
}

// Put stores a record for fileKey and compression, unconditionally
// replacing any existing record.
func (m *Map) Put(ctx context.Context, fileKey, compression string, files []string, name string, version int) error {
	return m.put(ctx, "filemap.put", nil, fileKey, compression, files, name, version)
}

// PutIf stores a record for fileKey and compression only if the name
// of the artifact currently recorded for fileKey, compression and
// version is expectName. Absent and stale records have the empty name.
// PutIf returns an errors.Precondition error if the current name does
// not match, including when the record changes concurrently.
func (m *Map) PutIf(ctx context.Context, expectName, fileKey, compression string, files []string, name string, version int) error {
	if fileKey == "" {
		return errors.E("filemap.putif", errors.Invalid, errors.New("empty file key"))
	}
	k := IndexKey(m.Folder, fileKey, compression)
	rec, raw, err := m.get(ctx, k)
	var (
		current string
		expect  []byte
	)
	switch {
	case errors.Is(errors.NotExist, err):
		expect = assoc.Absent
	case errors.Is(errors.Invalid, err) && raw != nil:
		expect = raw
	case err != nil:
		m.Log.Errorf("filemap: %s: %v", k, err)
		return errors.E("filemap.putif", fileKey, err)
	default:
		expect = raw
		if rec.Version == version {
			current = rec.CompositeFileName
		}
	}
	if current != expectName {
		metrics.GetFilemapWritesTotalCounter(ctx, metrics.Conflict).Inc()
		return errors.E("filemap.putif", fileKey, errors.Precondition,
			errors.Errorf("current artifact %q, expected %q", current, expectName))
	}
	return m.put(ctx, "filemap.putif", expect, fileKey, compression, files, name, version)
}

func (m *Map) put(ctx context.Context, op string, expect []byte, fileKey, compression string, files []string, name string, version int) error {
	if fileKey == "" {
		return errors.E(op, errors.Invalid, errors.New("empty file key"))
	}
	if files == nil {
		files = []string{}
	}
	p, err := json.Marshal(&bundlecache.Record{
		FileKey:           fileKey,
		CompositeFileName: name,
		CompressionType:   compression,
		Version:           version,
		DependentFiles:    files,
	})
	if err != nil {
		return errors.E(op, fileKey, err)
	}
	k := IndexKey(m.Folder, fileKey, compression)
	start := time.Now()
	err = m.Assoc.Put(ctx, k, expect, p)
	metrics.GetFilemapOpLatencySecondsHistogram(ctx, "put").Observe(time.Since(start).Seconds())
	switch {
	case err == nil:
		metrics.GetFilemapWritesTotalCounter(ctx, metrics.Ok).Inc()
		m.Log.Debugf("filemap: %s: stored %s", k, name)
		return nil
	case errors.Is(errors.Precondition, err):
		metrics.GetFilemapWritesTotalCounter(ctx, metrics.Conflict).Inc()
	default:
		metrics.GetFilemapWritesTotalCounter(ctx, metrics.Error).Inc()
		m.Log.Errorf("filemap: %s: store %s: %v", k, name, err)
	}
	return errors.E(op, fileKey, err)
}

// DependentFiles returns the files recorded for the uncompressed
// artifact of fileKey and version, with the semantics of Get.
func (m *Map) DependentFiles(ctx context.Context, fileKey string, version int) ([]string, bool, error) {
	rec, ok, err := m.Get(ctx, fileKey, version, "")
	if err != nil || !ok {
		return nil, false, err
	}
	return rec.DependentFiles, true, nil
}

// CreateMapIfAbsent computes the file key for files and version and,
// if no uncompressed record exists for it, reserves one with an empty
// artifact name. It returns the key even if the reservation fails. The
// check and the reservation are not atomic: concurrent callers may
// both reserve, which is harmless since reservations are identical.
func (m *Map) CreateMapIfAbsent(ctx context.Context, files []string, version int) (string, error) {
	key := bundlecache.Key(files, version)
	_, ok, err := m.Get(ctx, key, version, "")
	if err != nil || ok {
		return key, err
	}
	return key, m.Put(ctx, key, "", files, "", version)
}
