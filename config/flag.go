// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package config

import (
	"flag"
	"fmt"
)

// Flag exposes a FlagSet that overrides a set of config keys.
type Flag struct {
	Config

	vals map[string]*string
}

// Init registers a flag in flags for each key in AllKeys, and for
// the value keys mappath and redisttl.
func (f *Flag) Init(flags *flag.FlagSet) {
	f.vals = make(map[string]*string)
	for _, key := range append(append([]string{}, AllKeys...), MapPath, RedisTTL) {
		f.vals[key] = flags.String(key, "", fmt.Sprintf("override %s from config", key))
	}
}

// Value returns the flag override value for key key, or else the
// value from the layered configuration.
func (f *Flag) Value(key string) interface{} {
	s := f.vals[key]
	if s != nil && *s != "" {
		return *s
	}
	return f.Config.Value(key)
}

// Marshal adds the flag overrides to the keys marshaled by the
// layered configuration.
func (f *Flag) Marshal(keys Keys) error {
	if err := f.Config.Marshal(keys); err != nil {
		return err
	}
	for key, s := range f.vals {
		if s != nil && *s != "" {
			keys[key] = *s
		}
	}
	return nil
}

// MapFolder returns the mappath flag override, or else the layered
// configuration's map folder.
func (f *Flag) MapFolder() string {
	if s := f.vals[MapPath]; s != nil && *s != "" {
		return *s
	}
	return f.Config.MapFolder()
}
