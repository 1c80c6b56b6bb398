// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package s3config

import (
	"testing"

	_ "github.com/grailbio/bundlecache/config/awsconfig"

	"github.com/grailbio/bundlecache/config"
	"github.com/grailbio/bundlecache/errors"
)

func TestBucket(t *testing.T) {
	cfg, err := config.Parse([]byte(`
aws: static
awsregion: us-west-2
awsaccesskey: AKIAEXAMPLE
awssecretkey: secret
files: s3,assets,Bundles/
`))
	if err != nil {
		t.Fatal(err)
	}
	bucket, err := cfg.Bucket()
	if err != nil {
		t.Fatal(err)
	}
	if bucket == nil {
		t.Fatal("nil bucket")
	}
	if got, want := bucket.Location(), "s3://assets/"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := cfg.BasePath(), "Bundles/"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestMissingCredentials(t *testing.T) {
	cfg, err := config.Parse([]byte(`
logger: off
aws: static
awsregion: us-west-2
files: s3,assets
`))
	if err != nil {
		t.Fatal(err)
	}
	bucket, err := cfg.Bucket()
	if bucket != nil || err != nil {
		t.Errorf("got %v, %v, want nil bucket", bucket, err)
	}
	if got, want := cfg.BasePath(), "ClientDependency/Files/"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestInvalid(t *testing.T) {
	if _, err := config.Parse([]byte("files: s3\n")); !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want Invalid", err)
	}
}
