// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package dynamodbconfig defines the assoc provider "dynamodb", which
// keeps file map records in a DynamoDB table.
package dynamodbconfig

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/grailbio/base/limiter"
	"github.com/grailbio/bundlecache/assoc"
	"github.com/grailbio/bundlecache/assoc/dydbassoc"
	"github.com/grailbio/bundlecache/config"
	"github.com/grailbio/bundlecache/errors"
)

// maxOps is the number of concurrent DynamoDB operations allowed per
// assoc.
const maxOps = 64

func init() {
	config.Register(config.Assoc, "dynamodb", "table", "configure an assoc using the provided DynamoDB table name",
		func(cfg config.Config, arg string) (config.Config, error) {
			if arg == "" {
				return nil, errors.E("dynamodbconfig", errors.Invalid, errors.New("table name not provided"))
			}
			return &Assoc{cfg, arg}, nil
		},
	)
}

// Assoc is a dynamodb-based assoc configuration provider.
type Assoc struct {
	config.Config
	Table string
}

// Assoc returns a new dynamodb-backed assoc, as configured.
func (a *Assoc) Assoc() (assoc.Assoc, error) {
	sess, err := a.AWS()
	if err != nil {
		return nil, err
	}
	region, err := a.AWSRegion()
	if err != nil {
		return nil, err
	}
	logger, err := a.Logger()
	if err != nil {
		return nil, err
	}
	lim := limiter.New()
	lim.Release(maxOps)
	return &dydbassoc.Assoc{
		DB:        dynamodb.New(sess, aws.NewConfig().WithRegion(region)),
		Limiter:   lim,
		TableName: a.Table,
		Log:       logger,
	}, nil
}
