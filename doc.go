// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package bundlecache implements the core data structures of a cache
// for composite web assets: bundles of script or stylesheet files that
// have been combined, minified and optionally compressed.
//
// A set of dependent files and a version are fingerprinted by Key. The
// fingerprint addresses a Record in a remote key-value map (package
// filemap), which in turn names the composite artifact stored in a
// remote object store (package composite). Package cache composes the
// two into the interface used by asset handlers: look up the record
// for a bundle, read its bytes if they were persisted, and otherwise
// rebuild the bundle and report the new artifact back.
//
// Every read path in bundlecache degrades to a cache miss: a missing
// map entry, a stale version, a corrupt record, an unreachable store
// or an unconfigured object store all result in the caller rebuilding
// the bundle. Write failures, on the other hand, are returned to the
// caller, since they almost always indicate misconfiguration.
package bundlecache
