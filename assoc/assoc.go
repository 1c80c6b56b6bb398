// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package assoc defines the remote key-value map in which file map
// records are kept. Implementations live in subpackages: redisassoc
// (Redis) and dydbassoc (DynamoDB). Package assoc/test provides an
// in-memory implementation for tests.
package assoc

import (
	"bytes"
	"context"
)

// Absent may be passed as the expected value to Put to require that
// the key does not exist.
var Absent = []byte{}

// An Assoc is an associative array mapping string keys to opaque
// values. Implementations must be safe for concurrent use.
type Assoc interface {
	// Get returns the value associated with key k. Get returns an
	// errors.NotExist error when no such mapping exists.
	Get(ctx context.Context, k string) ([]byte, error)

	// Put associates the value v with the key k. If expect is nil,
	// Put overwrites any existing value unconditionally. Otherwise Put
	// performs a compare-and-set, erroring with errors.Precondition if
	// the current value is not equal to expect; an empty (non-nil)
	// expect, such as Absent, requires that k is not mapped.
	Put(ctx context.Context, k string, expect, v []byte) error
}

// Matches tells whether the current value cur (with ok reporting
// whether k was mapped at all) satisfies the expectation expect as
// defined by Assoc.Put. Implementations use it to share the
// compare-and-set semantics.
func Matches(expect, cur []byte, ok bool) bool {
	switch {
	case expect == nil:
		return true
	case len(expect) == 0:
		return !ok
	default:
		return ok && bytes.Equal(expect, cur)
	}
}
