// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"os/signal"
	"sort"
	"strings"

	"github.com/grailbio/bundlecache/cache"
	"github.com/grailbio/bundlecache/config"
	"github.com/grailbio/bundlecache/log"
	"github.com/grailbio/bundlecache/metrics"
	"github.com/grailbio/bundlecache/metrics/prometrics"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Func is the type of a command function.
type Func func(*Cmd, context.Context, ...string)

// Cmd holds the configuration, flag definitions, and runtime objects
// required for command invocations.
type Cmd struct {
	// Config must be specified.
	Config            config.Config
	DefaultConfigFile string

	// ConfigFile stores the path of the active configuration file.
	// May be overriden by the -config flag.
	ConfigFile string

	// The standard input, output and error as defined by this command.
	Stdin          io.Reader
	Stdout, Stderr io.Writer

	Log *log.Logger

	// Exit is called to terminate the process. It defaults to os.Exit.
	Exit func(code int)

	cache    *cache.Cache
	once     *config.OnceConfig
	registry *prometheus.Registry

	configFlag  config.Flag
	metricsFlag bool

	onexits []func()
	flags   *flag.FlagSet
}

var commands = map[string]Func{
	"key":     (*Cmd).key,
	"reserve": (*Cmd).reserve,
	"lookup":  (*Cmd).lookup,
	"deps":    (*Cmd).deps,
	"update":  (*Cmd).update,
	"fetch":   (*Cmd).fetch,
	"save":    (*Cmd).save,
	"config":  (*Cmd).config,
}

var intro = `The bundlecache command inspects and maintains a composite file cache.

A composite file is the combination of a set of dependent files (for
example, JavaScript or CSS sources), built for a version. The cache
remembers, for each set of files and version, a record naming the
composite file built for it, and keeps the composite file's bytes in
an object store.

Each subcommand can be invoked with -help, displaying its usage and
help text. For example:

	bundlecache lookup -help

bundlecache is configured from a single YAML configuration file,
$HOME/.bundlecache/config.yaml by default, or the file given by the
-config flag. For example:

	logger: info
	aws: static
	awsregion: us-west-2
	awsaccesskey: ...
	awssecretkey: ...
	assoc: redis,localhost:6379
	files: s3,my-bucket,ClientDependency/Files/

The toplevel configuration keys may be overriden by flags: -logger,
-aws, -assoc, -files, -mappath and -redisttl. The available providers
are listed by "bundlecache config -help".`

var help = `Usage of bundlecache:
	bundlecache [flags] <command> [args]`

// Flags returns the flag set for this command, registering the
// global flags on first use.
func (c *Cmd) Flags() *flag.FlagSet {
	if c.flags == nil {
		c.flags = flag.NewFlagSet("bundlecache", flag.ExitOnError)
		c.flags.Usage = func() { c.usage(c.flags) }
		c.flags.StringVar(&c.ConfigFile, "config", c.DefaultConfigFile, "the bundlecache configuration file")
		c.flags.BoolVar(&c.metricsFlag, "metrics", false, "print metrics to standard error on exit")
		c.configFlag.Init(c.flags)
	}
	return c.flags
}

func (c *Cmd) usage(flags *flag.FlagSet) {
	fmt.Fprintln(c.Stderr, help)
	fmt.Fprintln(c.Stderr, "Commands:")
	var cmds []string
	for name := range commands {
		cmds = append(cmds, name)
	}
	sort.Strings(cmds)
	for _, name := range cmds {
		fmt.Fprintln(c.Stderr, "\t"+name)
	}
	fmt.Fprintln(c.Stderr, "Global flags:")
	flags.PrintDefaults()
	c.exit(2)
}

// Main parses the configuration and invokes the requested command.
// The caller is expected to have parsed the flag set. Main should
// only be called once.
func (c *Cmd) Main() {
	if c.Stdin == nil {
		c.Stdin = os.Stdin
	}
	if c.Stdout == nil {
		c.Stdout = os.Stdout
	}
	if c.Stderr == nil {
		c.Stderr = os.Stderr
	}
	flags := c.Flags()
	if flags.NArg() == 0 {
		fmt.Fprintln(c.Stderr, intro)
		fmt.Fprintln(c.Stderr)
		c.usage(flags)
		return
	}
	cmd, ok := commands[flags.Arg(0)]
	if !ok {
		fmt.Fprintf(c.Stderr, "unknown command %s\n", flags.Arg(0))
		c.usage(flags)
		return
	}
	if err := c.loadConfig(); err != nil {
		c.Fatal(err)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt)
	go func() {
		<-sigc
		cancel()
	}()
	if c.metricsFlag {
		c.registry = prometheus.NewRegistry()
		client, err := prometrics.NewClient(c.registry, "")
		if err != nil {
			c.Fatal(err)
			return
		}
		ctx = metrics.WithClient(ctx, client)
		c.onexit(c.printMetrics)
	}
	cmd(c, ctx, flags.Args()[1:]...)
	cancel()
	c.exit(0)
}

// loadConfig reads the configuration file, if it exists, layers it
// under the flag overrides and provisions it.
func (c *Cmd) loadConfig() error {
	base := make(config.Base)
	if c.ConfigFile != "" {
		b, err := ioutil.ReadFile(c.ConfigFile)
		if err != nil && !os.IsNotExist(err) {
			return err
		}
		if err := config.Unmarshal(b, config.Keys(base)); err != nil {
			return err
		}
	}
	var cfg config.Config = layered{base, c.Config}
	c.configFlag.Config = cfg
	cfg, err := config.Make(&c.configFlag)
	if err != nil {
		return err
	}
	c.once = config.Once(cfg)
	c.Config = c.once
	c.onexit(func() {
		if err := c.once.Close(); err != nil {
			c.Log.Errorf("close: %v", err)
		}
	})
	c.Log, err = c.Config.Logger()
	return err
}

// layered is a configuration whose file keys override the defaults
// carried by the command's initial configuration.
type layered struct {
	config.Base
	defaults config.Config
}

func (l layered) Value(key string) interface{} {
	if v := l.Base.Value(key); v != nil {
		return v
	}
	return l.defaults.Value(key)
}

func (l layered) Marshal(keys config.Keys) error {
	if err := l.defaults.Marshal(keys); err != nil {
		return err
	}
	return l.Base.Marshal(keys)
}

// Cache returns the cache as configured, building it on first use.
func (c *Cmd) Cache() *cache.Cache {
	if c.cache == nil {
		var err error
		c.cache, err = config.Cache(c.Config)
		if err != nil {
			c.Fatal(err)
		}
	}
	return c.cache
}

// Parse parses the provided subcommand flags and arguments, handling
// the -help flag.
func (c *Cmd) Parse(fs *flag.FlagSet, args []string, help, usage string) {
	helpFlag := fs.Bool("help", false, "display subcommand help")
	fs.SetOutput(c.Stderr)
	fs.Usage = func() {
		fmt.Fprintln(c.Stderr, "usage: bundlecache "+usage)
		fmt.Fprintln(c.Stderr, "Flags:")
		fs.PrintDefaults()
		c.exit(2)
	}
	if err := fs.Parse(args); err != nil {
		c.Fatal(err)
	}
	if *helpFlag {
		fmt.Fprintln(c.Stderr, "usage: bundlecache "+usage)
		fmt.Fprintln(c.Stderr)
		fmt.Fprintln(c.Stderr, help)
		fmt.Fprintln(c.Stderr)
		fmt.Fprintln(c.Stderr, "Flags:")
		fs.PrintDefaults()
		c.exit(0)
	}
}

// Fatal formats a message in the manner of fmt.Print, prints it to
// stderr, and then exits the tool.
func (c *Cmd) Fatal(v ...interface{}) {
	fmt.Fprintln(c.Stderr, v...)
	c.exit(1)
}

// Fatalf formats a message in the manner of fmt.Printf, prints it to
// stderr, and then exits the tool.
func (c *Cmd) Fatalf(format string, v ...interface{}) {
	fmt.Fprintf(c.Stderr, format, v...)
	c.exit(1)
}

// Errorln formats a message in the manner of fmt.Println and prints
// it to stderr.
func (c *Cmd) Errorln(v ...interface{}) {
	fmt.Fprintln(c.Stderr, v...)
}

// Println formats a message in the manner of fmt.Println and prints
// it to stdout.
func (c *Cmd) Println(v ...interface{}) {
	fmt.Fprintln(c.Stdout, v...)
}

func (c *Cmd) onexit(f func()) {
	c.onexits = append(c.onexits, f)
}

func (c *Cmd) exit(code int) {
	for i := len(c.onexits) - 1; i >= 0; i-- {
		c.onexits[i]()
	}
	c.onexits = nil
	if c.Exit != nil {
		c.Exit(code)
		return
	}
	os.Exit(code)
}

// printMetrics writes the gathered metrics to stderr, one sample per
// line.
func (c *Cmd) printMetrics() {
	mfs, err := c.registry.Gather()
	if err != nil {
		c.Log.Errorf("gather metrics: %v", err)
		return
	}
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			name := mf.GetName() + labelString(m.GetLabel())
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				fmt.Fprintf(c.Stderr, "%s %v\n", name, m.GetCounter().GetValue())
			case dto.MetricType_HISTOGRAM:
				h := m.GetHistogram()
				fmt.Fprintf(c.Stderr, "%s count=%d sum=%.6f\n", name, h.GetSampleCount(), h.GetSampleSum())
			}
		}
	}
}

func labelString(pairs []*dto.LabelPair) string {
	if len(pairs) == 0 {
		return ""
	}
	labels := make([]string, len(pairs))
	for i, p := range pairs {
		labels[i] = fmt.Sprintf("%s=%q", p.GetName(), p.GetValue())
	}
	return "{" + strings.Join(labels, ",") + "}"
}
