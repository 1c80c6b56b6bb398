// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package s3blob implements the blob interfaces for S3.
package s3blob

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/grailbio/bundlecache/errors"
)

const (
	s3minpartsize = 16 << 20
	s3concurrency = 8
)

// Bucket represents an s3 bucket; it implements blob.Bucket.
type Bucket struct {
	bucket string
	client s3iface.S3API
}

// New returns a bucket named name in the provided region, accessed
// with the provided session. SDK-level retries are disabled: write
// failures are reported to the caller immediately and read failures
// are handled as cache misses.
func New(sess *session.Session, region, name string) *Bucket {
	config := aws.Config{MaxRetries: aws.Int(0)}
	if region != "" {
		config.Region = aws.String(region)
	}
	return NewBucket(name, s3.New(sess, &config))
}

// NewBucket returns a new S3 bucket that uses the provided client
// for SDK calls. NewBucket is primarily intended for testing.
func NewBucket(name string, client s3iface.S3API) *Bucket {
	return &Bucket{name, client}
}

// maxS3Ops returns the optimal s3concurrency for parallel data transfers
// based on the file size. Returns a value from [1, s3concurrency].
func maxS3Ops(size int64) int {
	if size == 0 {
		return s3concurrency
	}
	c := (size + s3minpartsize - 1) / s3minpartsize
	if c > s3concurrency {
		c = s3concurrency
	}
	return int(c)
}

// Get retrieves the object at the provided key.
func (b *Bucket) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := b.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errors.E("s3blob.get", b.bucket, key, kind(err), err)
	}
	return resp.Body, nil
}

// Put stores the contents of the provided io.Reader at the provided key.
func (b *Bucket) Put(ctx context.Context, key string, size int64, body io.Reader) error {
	up := s3manager.NewUploaderWithClient(b.client, func(u *s3manager.Uploader) {
		u.PartSize = s3minpartsize
		u.Concurrency = maxS3Ops(size)
	})
	_, err := up.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   body,
	})
	if err != nil {
		return errors.E("s3blob.put", b.bucket, key, kind(err), err)
	}
	return nil
}

// Location returns the s3 URL of this bucket, e.g., s3://assets/.
func (b *Bucket) Location() string {
	return "s3://" + b.bucket + "/"
}

// kind interprets an S3 API error into an error kind.
func kind(err error) errors.Kind {
	aerr, ok := err.(awserr.Error)
	if !ok {
		return errors.Other
	}
	// s3manager wraps the underlying API error in a batch or
	// multi-upload failure; classify the original error.
	if orig := aerr.OrigErr(); orig != nil {
		if k := kind(orig); k != errors.Other {
			return k
		}
	}
	switch aerr.Code() {
	// Code NotFound is not documented, but it's what the API actually returns.
	case "NoSuchBucket", "NoSuchKey", "NoSuchVersion", "NotFound":
		return errors.NotExist
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return errors.NotAllowed
	case "InvalidRequest", "InvalidArgument", "EntityTooSmall", "EntityTooLarge", "KeyTooLong", "MethodNotAllowed":
		return errors.Fatal
	case "ExpiredToken", "AccountProblem", "ServiceUnavailable", "TokenRefreshRequired", "OperationAborted":
		return errors.Unavailable
	case "PreconditionFailed":
		return errors.Precondition
	case "SlowDown":
		return errors.ResourcesExhausted
	case request.CanceledErrorCode:
		return errors.Canceled
	}
	return errors.Other
}
