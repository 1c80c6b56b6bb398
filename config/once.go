// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package config

import (
	"io"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/grailbio/base/sync/once"
	"github.com/grailbio/bundlecache/assoc"
	"github.com/grailbio/bundlecache/blob"
	"github.com/grailbio/bundlecache/log"
)

// OnceConfig memoizes the first call of the following methods to the
// underlying config: Logger, AWS, Assoc and Bucket. The memoized
// clients are shared process-wide and released by Close.
type OnceConfig struct {
	Config

	loggerOnce once.Task
	logger     *log.Logger

	awsOnce once.Task
	aws     *session.Session

	assocOnce once.Task
	assoc     assoc.Assoc

	bucketOnce once.Task
	bucket     blob.Bucket
}

// Once constructs a new OnceConfig using the provided
// underlying configuration.
func Once(cfg Config) *OnceConfig {
	return &OnceConfig{Config: cfg}
}

// Logger returns the result of the first call to the underlying
// configuration's Logger.
func (o *OnceConfig) Logger() (*log.Logger, error) {
	err := o.loggerOnce.Do(func() (err error) {
		o.logger, err = o.Config.Logger()
		return
	})
	return o.logger, err
}

// AWS returns the result of the first call to the underlying
// configuration's AWS.
func (o *OnceConfig) AWS() (*session.Session, error) {
	err := o.awsOnce.Do(func() (err error) {
		o.aws, err = o.Config.AWS()
		return
	})
	return o.aws, err
}

// Assoc returns the result of the first call to the underlying
// configuration's Assoc.
func (o *OnceConfig) Assoc() (assoc.Assoc, error) {
	err := o.assocOnce.Do(func() (err error) {
		o.assoc, err = o.Config.Assoc()
		return
	})
	return o.assoc, err
}

// Bucket returns the result of the first call to the underlying
// configuration's Bucket.
func (o *OnceConfig) Bucket() (blob.Bucket, error) {
	err := o.bucketOnce.Do(func() (err error) {
		o.bucket, err = o.Config.Bucket()
		return
	})
	return o.bucket, err
}

// Close releases the memoized clients that hold resources, such as
// the connection pool of a Redis assoc.
func (o *OnceConfig) Close() error {
	if c, ok := o.assoc.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
