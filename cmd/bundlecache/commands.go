// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io/ioutil"
	"sort"
	"strings"

	"github.com/grailbio/bundlecache"
	"github.com/grailbio/bundlecache/composite"
	"github.com/grailbio/bundlecache/config"
)

type recordFlags struct {
	version     int
	compression string
}

func (r *recordFlags) register(flags *flag.FlagSet, compression bool) {
	flags.IntVar(&r.version, "version", 1, "the cache-busting version")
	if compression {
		flags.StringVar(&r.compression, "compression", "", "the compression type (empty for uncompressed)")
	}
}

func (c *Cmd) key(ctx context.Context, args ...string) {
	var (
		flags = flag.NewFlagSet("key", flag.ExitOnError)
		rf    recordFlags
		help  = `Key prints the file key computed for the provided files and version.
The order of the files is significant. No remote service is consulted.`
	)
	rf.register(flags, false)
	c.Parse(flags, args, help, "key [-version n] files...")
	c.Println(bundlecache.Key(flags.Args(), rf.version))
}

func (c *Cmd) reserve(ctx context.Context, args ...string) {
	var (
		flags = flag.NewFlagSet("reserve", flag.ExitOnError)
		rf    recordFlags
		help  = `Reserve computes the file key for the provided files and version
and, unless a record already exists for it, stores a reservation: a
record without a composite file. The key is printed.`
	)
	rf.register(flags, false)
	c.Parse(flags, args, help, "reserve [-version n] files...")
	key, err := c.Cache().CreateMapIfAbsent(ctx, flags.Args(), rf.version)
	if err != nil {
		c.Fatal(err)
		return
	}
	c.Println(key)
}

func (c *Cmd) lookup(ctx context.Context, args ...string) {
	var (
		flags = flag.NewFlagSet("lookup", flag.ExitOnError)
		rf    recordFlags
		help  = `Lookup prints the record stored for the provided key, version and
compression type as JSON. Lookup exits with status 1 if no record
exists for the version.`
	)
	rf.register(flags, true)
	c.Parse(flags, args, help, "lookup [-version n] [-compression type] key")
	if flags.NArg() != 1 {
		flags.Usage()
		return
	}
	rec, ok, err := c.Cache().Lookup(ctx, flags.Arg(0), rf.version, rf.compression)
	if err != nil {
		c.Fatal(err)
		return
	}
	if !ok {
		c.Fatal("no record")
		return
	}
	b, err := json.MarshalIndent(rec, "", "\t")
	if err != nil {
		c.Fatal(err)
		return
	}
	c.Println(string(b))
}

func (c *Cmd) deps(ctx context.Context, args ...string) {
	var (
		flags = flag.NewFlagSet("deps", flag.ExitOnError)
		rf    recordFlags
		help  = `Deps prints the dependent files recorded for the provided key and
version, one per line.`
	)
	rf.register(flags, false)
	c.Parse(flags, args, help, "deps [-version n] key")
	if flags.NArg() != 1 {
		flags.Usage()
		return
	}
	files, ok, err := c.Cache().DependentFiles(ctx, flags.Arg(0), rf.version)
	if err != nil {
		c.Fatal(err)
		return
	}
	if !ok {
		c.Fatal("no record")
		return
	}
	for _, file := range files {
		c.Println(file)
	}
}

func (c *Cmd) update(ctx context.Context, args ...string) {
	var (
		flags  = flag.NewFlagSet("update", flag.ExitOnError)
		rf     recordFlags
		expect = flags.String("if", "", "update only if the current composite file is this one")
		cas    = flags.Bool("cas", false, "compare with -if before updating; an empty -if requires that no composite file is recorded")
		help   = `Update records name as the composite file built for the provided
key, version and compression type, replacing any existing record.
With -cas, the record is replaced only if the composite file currently
recorded is the one given by -if.`
	)
	rf.register(flags, true)
	c.Parse(flags, args, help, "update [-version n] [-compression type] [-cas] [-if name] key name files...")
	if flags.NArg() < 2 {
		flags.Usage()
		return
	}
	key, name, files := flags.Arg(0), flags.Arg(1), flags.Args()[2:]
	var err error
	if *cas {
		err = c.Cache().UpdateIf(ctx, *expect, key, rf.compression, files, name, rf.version)
	} else {
		err = c.Cache().Update(ctx, key, rf.compression, files, name, rf.version)
	}
	if err != nil {
		c.Fatal(err)
	}
}

func (c *Cmd) fetch(ctx context.Context, args ...string) {
	var (
		flags = flag.NewFlagSet("fetch", flag.ExitOnError)
		rf    recordFlags
		out   = flags.String("o", "", "write the composite file here instead of standard output")
		help  = `Fetch writes the bytes of the composite file recorded for the provided
key, version and compression type. Fetch exits with status 1 if there
is no record, if the record is a reservation, or if the bytes cannot
be read.`
	)
	rf.register(flags, true)
	c.Parse(flags, args, help, "fetch [-version n] [-compression type] [-o file] key")
	if flags.NArg() != 1 {
		flags.Usage()
		return
	}
	p, ok, err := c.Cache().Resolve(ctx, flags.Arg(0), rf.version, rf.compression)
	if err != nil {
		c.Fatal(err)
		return
	}
	if !ok {
		c.Fatal("composite file not available")
		return
	}
	if *out != "" {
		if err := ioutil.WriteFile(*out, p, 0644); err != nil {
			c.Fatal(err)
		}
		return
	}
	if _, err := c.Stdout.Write(p); err != nil {
		c.Fatal(err)
	}
}

func (c *Cmd) save(ctx context.Context, args ...string) {
	var (
		flags = flag.NewFlagSet("save", flag.ExitOnError)
		rf    recordFlags
		in    = flags.String("i", "", "read the composite file from here instead of standard input")
		kind  = flags.String("kind", "js", "the kind of composite file: js or css")
		help  = `Save stores a composite file, read from standard input, built from the
provided files and version, and records it for the files' key and the
compression type. The new composite file's name is printed. Nothing
is stored if no artifact bucket is configured.`
	)
	rf.register(flags, true)
	c.Parse(flags, args, help, "save [-version n] [-compression type] [-kind js|css] [-i file] files...")
	k, ok := composite.ParseKind(*kind)
	if !ok {
		c.Fatalf("unknown kind %q\n", *kind)
		return
	}
	var (
		p   []byte
		err error
	)
	if *in != "" {
		p, err = ioutil.ReadFile(*in)
	} else {
		p, err = ioutil.ReadAll(c.Stdin)
	}
	if err != nil {
		c.Fatal(err)
		return
	}
	files := flags.Args()
	cache := c.Cache()
	name, err := cache.Commit(ctx, cache.Key(files, rf.version), rf.compression, files, p, k, rf.version)
	if err != nil {
		c.Fatal(err)
		return
	}
	if name == "" {
		c.Errorln("no artifact bucket configured; nothing saved")
		return
	}
	c.Println(name)
}

func (c *Cmd) config(ctx context.Context, args ...string) {
	var (
		flags = flag.NewFlagSet("config", flag.ExitOnError)
		help  = `Config prints the active configuration in YAML. With -help, it also
lists the available configuration providers.`
	)
	c.Parse(flags, args, help+"\n\n"+providerHelp(), "config")
	b, err := config.Marshal(c.Config)
	if err != nil {
		c.Fatal(err)
		return
	}
	fmt.Fprint(c.Stdout, string(b))
}

func providerHelp() string {
	var b strings.Builder
	b.WriteString("Providers:")
	help := config.Help()
	var keys []string
	for key := range help {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		usages := help[key]
		sort.Slice(usages, func(i, j int) bool { return usages[i].Kind < usages[j].Kind })
		fmt.Fprintf(&b, "\n\n%s:", key)
		for _, u := range usages {
			arg := u.Kind
			if u.Arg != "" {
				arg += "," + u.Arg
			}
			fmt.Fprintf(&b, "\n\t%s\n\t\t%s", arg, u.Usage)
		}
	}
	return b.String()
}
