// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package s3config defines a configuration provider named "s3"
// which can be used to keep composite artifacts in an S3 bucket.
package s3config

import (
	"strings"

	"github.com/grailbio/bundlecache/blob"
	"github.com/grailbio/bundlecache/blob/s3blob"
	"github.com/grailbio/bundlecache/config"
	"github.com/grailbio/bundlecache/errors"
)

func init() {
	config.Register(config.Files, "s3", "bucket[,basepath]", "keep composite artifacts in an S3 bucket, under basepath (default ClientDependency/Files/); artifacts are not persisted if AWS credentials are missing",
		func(cfg config.Config, arg string) (config.Config, error) {
			bucket, base := arg, ""
			if i := strings.Index(arg, ","); i >= 0 {
				bucket, base = arg[:i], arg[i+1:]
			}
			if bucket == "" {
				return nil, errors.E("s3config", errors.Invalid, errors.New("bucket name not provided"))
			}
			return &files{Config: cfg, bucket: bucket, base: base}, nil
		},
	)
}

type files struct {
	config.Config
	bucket, base string
}

// Bucket returns the configured S3 bucket, or nil if AWS credentials
// are not configured.
func (f *files) Bucket() (blob.Bucket, error) {
	sess, err := f.AWS()
	if errors.Is(errors.NotExist, err) {
		if logger, _ := f.Logger(); logger != nil {
			logger.Debugf("s3config: %v; not persisting artifacts to s3://%s", err, f.bucket)
		}
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	region, err := f.AWSRegion()
	if err != nil {
		return nil, err
	}
	return s3blob.New(sess, region, f.bucket), nil
}

func (f *files) BasePath() string {
	if f.base == "" {
		return f.Config.BasePath()
	}
	return f.base
}
