// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package redisassoc implements an assoc.Assoc based on Redis string
// keys.
package redisassoc

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/grailbio/bundlecache/assoc"
	"github.com/grailbio/bundlecache/errors"
	"github.com/redis/go-redis/v9"
)

// Client is the subset of the go-redis client used by Assoc.
// *redis.Client implements Client.
type Client interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error
	Close() error
}

// Assoc implements a Redis-backed Assoc. Each association is a plain
// Redis string whose key is the association key. Compare-and-set is
// implemented with optimistic WATCH/MULTI transactions.
type Assoc struct {
	Client Client
	// Expiration, if nonzero, is applied to every written key, so that
	// entries that are not refreshed are eventually evicted.
	Expiration time.Duration
}

// Options parses a connection string into go-redis options. The
// connection string is either a redis:// (or rediss://) URL, or a bare
// host:port address. A nonnegative db overrides any database given in
// the URL.
func Options(conn string, db int) (*redis.Options, error) {
	var opts *redis.Options
	if strings.HasPrefix(conn, "redis://") || strings.HasPrefix(conn, "rediss://") {
		var err error
		opts, err = redis.ParseURL(conn)
		if err != nil {
			return nil, errors.E("redisassoc.options", errors.Invalid, err)
		}
	} else {
		if conn == "" {
			return nil, errors.E("redisassoc.options", errors.Invalid, errors.New("empty connection string"))
		}
		opts = &redis.Options{Addr: conn}
	}
	if db >= 0 {
		opts.DB = db
	}
	return opts, nil
}

// Dial connects to the Redis server described by conn and db (see
// Options) and verifies the connection.
func Dial(ctx context.Context, conn string, db int) (*Assoc, error) {
	opts, err := Options(conn, db)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.E("redisassoc.dial", opts.Addr, kind(err), err)
	}
	return &Assoc{Client: client}, nil
}

// Get returns the value stored at key k.
func (a *Assoc) Get(ctx context.Context, k string) ([]byte, error) {
	v, err := a.Client.Get(ctx, k).Bytes()
	switch {
	case err == redis.Nil:
		return nil, errors.E("redisassoc.get", k, errors.NotExist)
	case err != nil:
		return nil, errors.E("redisassoc.get", k, kind(err), err)
	}
	return v, nil
}

var errMismatch = errors.New("value mismatch")

// Put stores v at key k, performing a compare-and-set when expect is
// non-nil.
func (a *Assoc) Put(ctx context.Context, k string, expect, v []byte) error {
	if expect == nil {
		if err := a.Client.Set(ctx, k, v, a.Expiration).Err(); err != nil {
			return errors.E("redisassoc.put", k, kind(err), err)
		}
		return nil
	}
	err := a.Client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, k).Bytes()
		ok := true
		if err == redis.Nil {
			ok = false
		} else if err != nil {
			return err
		}
		if !assoc.Matches(expect, cur, ok) {
			return errMismatch
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, v, a.Expiration)
			return nil
		})
		return err
	}, k)
	switch {
	case err == nil:
		return nil
	case err == errMismatch, err == redis.TxFailedErr:
		return errors.E("redisassoc.put", k, errors.Precondition)
	default:
		return errors.E("redisassoc.put", k, kind(err), err)
	}
}

// Close closes the underlying client.
func (a *Assoc) Close() error {
	return a.Client.Close()
}

// kind interprets a Redis client error into an error kind.
func kind(err error) errors.Kind {
	if err == redis.ErrClosed {
		return errors.Unavailable
	}
	if _, ok := err.(*net.OpError); ok {
		return errors.Unavailable
	}
	rerr, ok := err.(redis.Error)
	if !ok {
		return errors.Other
	}
	msg := rerr.Error()
	switch {
	case strings.HasPrefix(msg, "NOAUTH"), strings.HasPrefix(msg, "WRONGPASS"), strings.HasPrefix(msg, "NOPERM"):
		return errors.NotAllowed
	case strings.HasPrefix(msg, "LOADING"), strings.HasPrefix(msg, "BUSY"),
		strings.HasPrefix(msg, "TRYAGAIN"), strings.HasPrefix(msg, "MASTERDOWN"),
		strings.HasPrefix(msg, "READONLY"):
		return errors.Unavailable
	case strings.HasPrefix(msg, "OOM"):
		return errors.ResourcesExhausted
	}
	return errors.Other
}
