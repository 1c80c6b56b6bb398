// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package redisconfig defines the assoc provider "redis", which keeps
// file map records in a Redis database.
package redisconfig

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/grailbio/bundlecache/assoc"
	"github.com/grailbio/bundlecache/assoc/redisassoc"
	"github.com/grailbio/bundlecache/config"
	"github.com/grailbio/bundlecache/errors"
)

func init() {
	config.Register(config.Assoc, "redis", "addr[,db]", "configure an assoc using the Redis server at addr (host:port or redis:// URL); the optional key redisttl sets an expiration on records",
		func(cfg config.Config, arg string) (config.Config, error) {
			if arg == "" {
				return nil, errors.E("redisconfig", errors.Invalid, errors.New("address not provided"))
			}
			a := &Assoc{Config: cfg, Addr: arg, DB: -1}
			if i := strings.LastIndex(arg, ","); i >= 0 {
				db, err := strconv.Atoi(arg[i+1:])
				if err != nil {
					return nil, errors.E("redisconfig", errors.Invalid, errors.Errorf("bad database %q", arg[i+1:]))
				}
				a.Addr, a.DB = arg[:i], db
			}
			if v := cfg.Value(config.RedisTTL); v != nil {
				s, ok := v.(string)
				if !ok {
					return nil, errors.E("redisconfig", errors.Invalid, errors.Errorf("bad %s value %v", config.RedisTTL, v))
				}
				ttl, err := time.ParseDuration(s)
				if err != nil {
					return nil, errors.E("redisconfig", errors.Invalid, err)
				}
				a.TTL = ttl
			}
			return a, nil
		},
	)
}

// Assoc is a Redis-based assoc configuration provider.
type Assoc struct {
	config.Config
	// Addr is the server address or URL.
	Addr string
	// DB selects the database; negative values defer to Addr.
	DB int
	// TTL is the expiration applied to written records.
	TTL time.Duration
}

// Assoc dials the configured server and returns an assoc backed by it.
func (a *Assoc) Assoc() (assoc.Assoc, error) {
	r, err := redisassoc.Dial(context.Background(), a.Addr, a.DB)
	if err != nil {
		return nil, err
	}
	r.Expiration = a.TTL
	return r, nil
}
