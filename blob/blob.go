// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package blob defines the object store interface in which composite
// artifacts are kept. Package s3blob implements it for S3; package
// testblob provides an in-memory implementation for tests.
package blob

import (
	"context"
	"io"
)

// A Bucket is a single namespace of keys in an object store.
// Implementations must be safe for concurrent use.
type Bucket interface {
	// Get returns a (streaming) reader for the contents at the
	// provided key. Get returns an errors.NotExist error if no object
	// is stored at key.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Put streams the provided body to the provided key. Put overwrites
	// any existing object at the same key. If the provided size is
	// non-zero, it is used as a hint to manage concurrency.
	Put(ctx context.Context, key string, size int64, body io.Reader) error

	// Location returns a URL indicating the location of the bucket.
	// A key location can be derived by appending the key to the
	// bucket's location.
	Location() string
}
