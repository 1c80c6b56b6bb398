// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package config defines an interface for configuring a bundle cache.
// This interface can be composed in multiple ways, allowing for
// layered configuration.
//
// A configuration is a set of keys (corresponding to toplevel keys
// in a YAML document). A subset of keys, defined by the package's
// AllKeys, correspond to objects that are configured by the Config
// interface. These keys may be provisioned by globally registered
// providers; the keys must be string formatted, and contain the
// (registered) name of the provider, followed by an optional comma
// and string argument. For example:
//
//	assoc: redis,localhost:6379,2
//
// Configures the assoc key (corresponding to Config.Assoc) using the
// redis provider; the argument "localhost:6379,2" is used to
// configure it.
//
// Providers may themselves look up keys to supply further
// configuration. For example, the static AWS provider reads its
// credentials from the keys awsregion, awsaccesskey and awssecretkey:
//
//	aws: static
//	awsregion: us-west-2
//	awsaccesskey: AKIA...
//	awssecretkey: ...
//
// Configuration providers are registered globally; package
// config/all registers the standard set.
package config

import (
	"fmt"
	"io/ioutil"
	golog "log"
	"os"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/grailbio/bundlecache/assoc"
	"github.com/grailbio/bundlecache/blob"
	"github.com/grailbio/bundlecache/composite"
	"github.com/grailbio/bundlecache/errors"
	"github.com/grailbio/bundlecache/filemap"
	"github.com/grailbio/bundlecache/log"
	yaml "gopkg.in/yaml.v2"
)

// The following are the set of keys provisioned by Config.
const (
	Logger = "logger"
	AWS    = "aws"
	Assoc  = "assoc"
	Files  = "files"
)

// The following are plain value keys consulted by Base and by
// providers.
const (
	AWSRegion    = "awsregion"
	AWSAccessKey = "awsaccesskey"
	AWSSecretKey = "awssecretkey"
	MapPath      = "mappath"
	RedisTTL     = "redisttl"
)

// AllKeys defines the order in which configuration keys are
// provisioned. Thus, providers for keys later in the list may use
// configuration provided by providers for keys earlier in the list.
var AllKeys = []string{
	Logger,
	AWS,
	Assoc,
	Files,
}

// Keys is a map of string keys to configuration values.
type Keys map[string]interface{}

// A Config provides a number of methods to mint the objects that
// make up a cache. It is safe to call each method multiple times,
// but they should not be called concurrently.
type Config interface {
	// Logger returns the configured logger.
	Logger() (*log.Logger, error)

	// AWS returns this configuration's AWS session. It returns an
	// errors.NotExist error if AWS is not configured.
	AWS() (*session.Session, error)

	// AWSCreds returns the credentials of this configuration's AWS
	// session.
	AWSCreds() (*credentials.Credentials, error)

	// AWSRegion returns the region to be used for all AWS operations.
	AWSRegion() (string, error)

	// Assoc returns the assoc in which file map records are kept.
	Assoc() (assoc.Assoc, error)

	// Bucket returns the bucket in which composite artifacts are
	// kept. A nil bucket disables artifact persistence.
	Bucket() (blob.Bucket, error)

	// BasePath returns the key prefix of artifacts in Bucket.
	BasePath() string

	// MapFolder returns the key prefix of file map records.
	MapFolder() string

	// Value returns the value of the given key.
	Value(key string) interface{}

	// Marshal marshals the current configuration into keys.
	Marshal(keys Keys) error

	// Keys returns all the keys as defined by this config.
	Keys() Keys
}

// Base defines a base configuration with reasonable defaults
// where they apply.
type Base Keys

// Logger returns a logger that outputs to standard error.
func (b Base) Logger() (*log.Logger, error) {
	return log.New(golog.New(os.Stderr, "", golog.LstdFlags), log.InfoLevel), nil
}

// AWS returns an error indicating no AWS session was configured.
func (b Base) AWS() (*session.Session, error) {
	return nil, errors.E("config.aws", errors.NotExist, errors.New("AWS session not configured"))
}

// AWSCreds returns an error indicating no AWS credentials were configured.
func (b Base) AWSCreds() (*credentials.Credentials, error) {
	return nil, errors.E("config.awscreds", errors.NotExist, errors.New("AWS credentials not configured"))
}

// AWSRegion returns the region in the key "awsregion", or else
// the default region us-west-2.
func (b Base) AWSRegion() (string, error) {
	v, ok := b[AWSRegion]
	if ok {
		s, ok := v.(string)
		if !ok {
			return "", errors.E("config.awsregion", errors.Invalid, errors.Errorf("invalid AWS region value: %v", v))
		}
		return s, nil
	}
	return "us-west-2", nil
}

// Assoc returns an error indicating no assoc was configured.
func (b Base) Assoc() (assoc.Assoc, error) {
	return nil, errors.E("config.assoc", errors.NotExist, errors.New("assoc not configured"))
}

// Bucket returns a nil bucket: artifacts are not persisted.
func (b Base) Bucket() (blob.Bucket, error) {
	return nil, nil
}

// BasePath returns composite.DefaultBasePath.
func (b Base) BasePath() string {
	return composite.DefaultBasePath
}

// MapFolder returns the folder in the key "mappath", or else
// filemap.DefaultFolder.
func (b Base) MapFolder() string {
	if s, ok := b[MapPath].(string); ok && s != "" {
		return s
	}
	return filemap.DefaultFolder
}

// Keys returns the configured keys.
func (b Base) Keys() Keys {
	return Keys(b)
}

// Value returns the value for the provided key.
func (b Base) Value(key string) interface{} {
	return b[key]
}

// Marshal populates the provided key dictionary with the keys
// present in this configuration.
func (b Base) Marshal(keys Keys) error {
	for k, v := range b {
		keys[k] = v
	}
	return nil
}

// Unmarshal unmarshals the (YAML-configured) configuration in b into
// keys.
func Unmarshal(b []byte, keys Keys) error {
	return yaml.Unmarshal(b, keys)
}

// Marshal marshals the given keys into YAML-formatted bytes.
func Marshal(cfg Config) ([]byte, error) {
	keys := make(Keys)
	if err := cfg.Marshal(keys); err != nil {
		return nil, err
	}
	return yaml.Marshal(keys)
}

// Make evaluates a config's keys: for each key in AllKeys (and in
// the order defined by AllKeys), Make parses its provider, and
// provisions the key accordingly. Make returns errors if a provider
// cannot be found or if the provider fails to configure the given
// key.
func Make(cfg Config) (Config, error) {
	for _, key := range AllKeys {
		v := cfg.Value(key)
		if v == nil {
			continue
		}
		// YAML reads an unquoted off as false.
		if b, ok := v.(bool); ok && !b {
			v = "off"
		}
		vstr, ok := v.(string)
		if !ok {
			return nil, errors.E("config.make", key, errors.Invalid, errors.Errorf("expected string, got %T", v))
		}
		name, arg := peel(vstr, ",")
		provider, ok := Lookup(key, name)
		if !ok {
			return nil, errors.E("config.make", key, errors.NotExist, errors.Errorf("provider %s not defined", name))
		}
		var err error
		cfg, err = provider.Configure(cfg, arg)
		if err != nil {
			return nil, errors.E("config.make", key, name, err)
		}
	}
	return cfg, nil
}

// Parse parses and provisions a configuration from the
// YAML-formatted bytes b.
func Parse(b []byte) (Config, error) {
	base := make(Base)
	if err := Unmarshal(b, Keys(base)); err != nil {
		return nil, errors.E("config.parse", errors.Invalid, err)
	}
	return Make(base)
}

// ParseFile reads and then parses the configuration from the
// provided filename.
func ParseFile(filename string) (Config, error) {
	b, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, errors.E("config.parsefile", filename, err)
	}
	return Parse(b)
}

// A Provider provisions a single key in a configuration. Providers
// must be registered via the package's Register function.
type Provider struct {
	Configure        func(cfg Config, arg string) (Config, error)
	Kind, Arg, Usage string
}

var (
	providers = make(map[string]map[string]Provider)
	mu        sync.Mutex
)

// Register the configuration provider kind for the given key. The
// arg and usage string should describe the provider's argument.
// Register panics if key is not in AllKeys or if the provider is
// registered twice.
func Register(key, kind, arg, usage string, configure func(Config, string) (Config, error)) {
	var known bool
	for _, k := range AllKeys {
		known = known || k == key
	}
	if !known {
		panic(fmt.Sprintf("config: unknown key %s", key))
	}
	mu.Lock()
	defer mu.Unlock()
	kindmap := providers[key]
	if kindmap == nil {
		kindmap = make(map[string]Provider)
		providers[key] = kindmap
	}
	if _, ok := kindmap[kind]; ok {
		panic(fmt.Sprintf("provider %s already registered for key %s", kind, key))
	}
	kindmap[kind] = Provider{
		Configure: configure,
		Kind:      kind,
		Arg:       arg,
		Usage:     usage,
	}
}

// Lookup returns the Provider of kind for key.
func Lookup(key, kind string) (Provider, bool) {
	mu.Lock()
	defer mu.Unlock()
	p, ok := providers[key][kind]
	return p, ok
}

// Usage contains usage information for a provider.
type Usage struct {
	Kind, Arg, Usage string
}

// Help returns Usages, organized by key.
func Help() map[string][]Usage {
	mu.Lock()
	defer mu.Unlock()
	help := make(map[string][]Usage)
	for key, keyProviders := range providers {
		var usages []Usage
		for name, provider := range keyProviders {
			usages = append(usages, Usage{
				Kind:  name,
				Arg:   provider.Arg,
				Usage: provider.Usage,
			})
		}
		help[key] = usages
	}
	return help
}

func peel(s, sep string) (head, tail string) {
	switch parts := strings.SplitN(s, sep, 2); len(parts) {
	case 1:
		return parts[0], ""
	case 2:
		return parts[0], parts[1]
	default:
		panic("bug")
	}
}
