// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package config

import (
	golog "log"
	"os"

	"github.com/grailbio/bundlecache/blob"
	"github.com/grailbio/bundlecache/log"
)

func init() {
	Register(Files, "off", "", "do not persist composite artifacts",
		func(cfg Config, arg string) (Config, error) {
			return &filesOff{cfg}, nil
		},
	)
	for _, level := range []log.Level{log.OffLevel, log.ErrorLevel, log.InfoLevel, log.DebugLevel} {
		level := level
		Register(Logger, level.String(), "", "log messages at or below level "+level.String(),
			func(cfg Config, arg string) (Config, error) {
				return &logger{cfg, level}, nil
			},
		)
	}
}

type filesOff struct {
	Config
}

func (c *filesOff) Bucket() (blob.Bucket, error) {
	// A nil bucket is just an off bucket.
	return nil, nil
}

type logger struct {
	Config
	level log.Level
}

func (l *logger) Logger() (*log.Logger, error) {
	return log.New(golog.New(os.Stderr, "", golog.LstdFlags), l.level), nil
}
