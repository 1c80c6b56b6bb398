// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package awsconfig defines the AWS configuration providers "static",
// which reads credentials from configuration keys, and "env", which
// derives them from the user's environment in accordance with the AWS
// SDK.
package awsconfig

import (
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/grailbio/bundlecache/config"
	"github.com/grailbio/bundlecache/errors"
)

func init() {
	config.Register(config.AWS, "static", "", "configure AWS credentials from the keys awsaccesskey, awssecretkey and awsregion",
		func(cfg config.Config, arg string) (config.Config, error) {
			s := &static{Config: cfg}
			s.accessKey, _ = cfg.Value(config.AWSAccessKey).(string)
			s.secretKey, _ = cfg.Value(config.AWSSecretKey).(string)
			s.region, _ = cfg.Value(config.AWSRegion).(string)
			return s, nil
		},
	)
	config.Register(config.AWS, "env", "", "configure AWS credentials from the user's environment",
		func(cfg config.Config, arg string) (config.Config, error) {
			return &env{Config: cfg}, nil
		},
	)
}

// static is an AWS session built from static credentials. The session
// is configured only if the access key, secret key and region are all
// present; otherwise AWS returns an errors.NotExist error.
type static struct {
	config.Config
	accessKey, secretKey, region string

	sessionOnce sync.Once
	session     *session.Session
	err         error
}

func (s *static) configured() bool {
	return s.accessKey != "" && s.secretKey != "" && s.region != ""
}

func (s *static) AWSCreds() (*credentials.Credentials, error) {
	if !s.configured() {
		return nil, errors.E("awsconfig.static", errors.NotExist, errors.New("incomplete AWS credentials"))
	}
	return credentials.NewStaticCredentials(s.accessKey, s.secretKey, ""), nil
}

func (s *static) AWSRegion() (string, error) {
	if s.region == "" {
		return s.Config.AWSRegion()
	}
	return s.region, nil
}

func (s *static) AWS() (*session.Session, error) {
	s.sessionOnce.Do(func() {
		var creds *credentials.Credentials
		creds, s.err = s.AWSCreds()
		if s.err != nil {
			return
		}
		s.session, s.err = session.NewSession(&aws.Config{
			Credentials: creds,
			Region:      aws.String(s.region),
		})
		if s.err != nil {
			s.err = errors.E("awsconfig.static", s.err)
		}
	})
	return s.session, s.err
}

// env derives AWS configuration (AWSCreds, AWSRegion, AWS) from the
// user's environment, using the SDK's environment and shared
// credentials providers.
type env struct {
	config.Config

	sessionOnce sync.Once
	session     *session.Session
	err         error
}

func (e *env) AWSCreds() (*credentials.Credentials, error) {
	sess, err := e.AWS()
	if err != nil {
		return nil, err
	}
	return sess.Config.Credentials, nil
}

func (e *env) AWSRegion() (string, error) {
	sess, err := e.AWS()
	if err != nil {
		return "", err
	}
	if region := sess.Config.Region; region != nil && *region != "" {
		return *region, nil
	}
	return e.Config.AWSRegion()
}

func (e *env) AWS() (*session.Session, error) {
	e.sessionOnce.Do(func() {
		credProvider := &credentials.ChainProvider{
			VerboseErrors: true,
			Providers: []credentials.Provider{
				&credentials.EnvProvider{},
				&credentials.SharedCredentialsProvider{},
			},
		}
		// Retrieve here to catch NoCredentialProviders errors early.
		if _, err := credProvider.Retrieve(); err != nil {
			e.err = errors.E("awsconfig.env", errors.NotExist, err)
			return
		}
		region, err := e.Config.AWSRegion()
		if err != nil {
			e.err = err
			return
		}
		e.session, e.err = session.NewSession(&aws.Config{
			Credentials: credentials.NewCredentials(credProvider),
			Region:      aws.String(region),
		})
	})
	return e.session, e.err
}
