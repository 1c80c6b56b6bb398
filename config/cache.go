// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package config

import (
	"github.com/grailbio/bundlecache/cache"
	"github.com/grailbio/bundlecache/composite"
	"github.com/grailbio/bundlecache/errors"
	"github.com/grailbio/bundlecache/filemap"
)

// Cache assembles a cache from the configuration's logger, assoc and
// bucket.
func Cache(cfg Config) (*cache.Cache, error) {
	logger, err := cfg.Logger()
	if err != nil {
		return nil, err
	}
	a, err := cfg.Assoc()
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, errors.E("config.cache", errors.NotExist, errors.New("no assoc configured"))
	}
	bucket, err := cfg.Bucket()
	if err != nil {
		return nil, err
	}
	if bucket == nil {
		logger.Printf("no artifact bucket configured; composite files are not persisted")
	}
	m := &filemap.Map{Assoc: a, Folder: cfg.MapFolder(), Log: logger}
	files := &composite.Store{Bucket: bucket, BasePath: cfg.BasePath(), Log: logger}
	return cache.New(m, files, logger), nil
}
