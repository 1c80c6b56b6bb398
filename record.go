// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bundlecache

import (
	"context"
	"fmt"
	"sync"
)

// A FileReader reads composite artifacts by name. Package composite
// provides the standard implementation.
type FileReader interface {
	// Enabled tells whether composite artifacts are persisted at all.
	Enabled() bool
	// Read returns the artifact's bytes, or false if they are
	// not available for any reason.
	Read(ctx context.Context, name string) ([]byte, bool)
}

// Record describes one cached composite artifact: the combination of
// a set of dependent files, a version and a compression type. Records
// are stored as JSON in the file map.
//
// A Record with an empty CompositeFileName is a reservation: the file
// key has been handed out but the artifact has not been built (or
// reported) yet.
type Record struct {
	// FileKey is the key computed by Key over DependentFiles and Version.
	FileKey string `json:"fileKey"`
	// CompositeFileName names the stored composite artifact.
	CompositeFileName string `json:"compositeFileName"`
	// CompressionType is the compression variant described by this
	// record; empty for uncompressed artifacts.
	CompressionType string `json:"compressionType"`
	// Version is the caller's cache-busting generation.
	Version int `json:"version"`
	// DependentFiles are the files combined to produce the artifact,
	// in combination order.
	DependentFiles []string `json:"dependentFiles"`

	mu    sync.Mutex
	bytes []byte
}

// Reserved tells whether the record is a reservation without an
// artifact.
func (r *Record) Reserved() bool {
	return r.CompositeFileName == ""
}

// Bytes returns the composite artifact's bytes as read through files.
// It returns false when files is not enabled, when the record has no
// artifact name, or when the read fails. A successful read is kept on
// the record and returned by subsequent calls; failures are not, so a
// later call tries again.
func (r *Record) Bytes(ctx context.Context, files FileReader) ([]byte, bool) {
	if files == nil || !files.Enabled() {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bytes != nil {
		return r.bytes, true
	}
	if r.CompositeFileName == "" {
		return nil, false
	}
	p, ok := files.Read(ctx, r.CompositeFileName)
	if !ok {
		return nil, false
	}
	r.bytes = p
	return p, true
}

// HasBytes tells whether the record's artifact bytes can be read.
func (r *Record) HasBytes(ctx context.Context, files FileReader) bool {
	_, ok := r.Bytes(ctx, files)
	return ok
}

// String renders a short description of the record.
func (r *Record) String() string {
	name := r.CompositeFileName
	if name == "" {
		name = "<reserved>"
	}
	s := fmt.Sprintf("%s@%d -> %s", r.FileKey, r.Version, name)
	if r.CompressionType != "" {
		s += " (" + r.CompressionType + ")"
	}
	return s
}
