// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Command bundlecache inspects and maintains a composite file cache:
// it computes file keys, reserves and updates file map records, and
// stores and fetches composite artifacts.
package main

import (
	"os"

	"github.com/grailbio/bundlecache/config"
	_ "github.com/grailbio/bundlecache/config/all"
)

var configFile = os.ExpandEnv("$HOME/.bundlecache/config.yaml")

func main() {
	var cfg config.Config = make(config.Base)
	cfg = &config.KeyConfig{Config: cfg, Key: config.Logger, Val: "info"}
	cfg = &config.KeyConfig{Config: cfg, Key: config.AWS, Val: "static"}
	c := &Cmd{
		Config:            cfg,
		DefaultConfigFile: configFile,
	}
	c.Flags().Parse(os.Args[1:])
	c.Main()
}
