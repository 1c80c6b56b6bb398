// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package cache

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/grailbio/base/limiter"
	"github.com/grailbio/bundlecache"
	"github.com/grailbio/bundlecache/assoc/test"
	"github.com/grailbio/bundlecache/blob/testblob"
	"github.com/grailbio/bundlecache/composite"
	"github.com/grailbio/bundlecache/errors"
	"github.com/grailbio/bundlecache/filemap"
	"github.com/grailbio/bundlecache/metrics"
	"github.com/grailbio/bundlecache/metrics/prometrics"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"golang.org/x/sync/errgroup"
)

type testCache struct {
	*Cache
	assoc  *test.InmemoryAssoc
	bucket *testblob.Bucket
}

func newTestCache() testCache {
	a := test.NewInmemoryAssoc()
	b := testblob.New("s3", "assets")
	return testCache{
		Cache:  New(filemap.New(a, nil), composite.New(b, nil), nil),
		assoc:  a,
		bucket: b,
	}
}

func TestScenario(t *testing.T) {
	ctx := context.Background()
	c := newTestCache()
	files := []string{"a.js", "b.js"}

	key, err := c.CreateMapIfAbsent(ctx, files, 3)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := key, bundlecache.Digester.FromString("a.js;b.js3").Hex(); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	rec, ok, err := c.Lookup(ctx, key, 3, "")
	if err != nil || !ok {
		t.Fatalf("got %v, %v, want reservation", ok, err)
	}
	if !rec.Reserved() {
		t.Errorf("record %v is not reserved", rec)
	}
	if _, ok := c.Bytes(ctx, rec); ok {
		t.Error("reservation has bytes")
	}
	if _, ok, _ := c.Resolve(ctx, key, 3, ""); ok {
		t.Error("reservation resolved")
	}

	body := []byte("var a;var b;")
	if err := c.bucket.Put(ctx, "ClientDependency/Files/3/abc123.js", int64(len(body)), strings.NewReader(string(body))); err != nil {
		t.Fatal(err)
	}
	if err := c.Update(ctx, key, "", files, "3-abc123.js", 3); err != nil {
		t.Fatal(err)
	}
	rec, ok, err = c.Lookup(ctx, key, 3, "")
	if err != nil || !ok {
		t.Fatalf("got %v, %v, want record", ok, err)
	}
	p, ok := c.Bytes(ctx, rec)
	if !ok {
		t.Fatal("bytes unavailable")
	}
	if got, want := string(p), string(body); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	// Bytes are read once per record.
	if _, ok := c.Bytes(ctx, rec); !ok {
		t.Fatal("bytes unavailable")
	}
	if got, want := c.bucket.Gets(), 1; got != want {
		t.Errorf("got %v gets, want %v", got, want)
	}
	// A different version misses.
	if _, ok, _ := c.Lookup(ctx, key, 4, ""); ok {
		t.Error("stale record found")
	}
	deps, ok, err := c.DependentFiles(ctx, key, 3)
	if err != nil || !ok {
		t.Fatalf("got %v, %v, want files", ok, err)
	}
	if got, want := deps, files; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestCommitResolve(t *testing.T) {
	ctx := context.Background()
	c := newTestCache()
	files := []string{"/css/a.css", "/css/b.css"}
	key := c.Key(files, 2)
	if _, ok, err := c.Resolve(ctx, key, 2, "gzip"); ok || err != nil {
		t.Fatalf("got %v, %v, want miss", ok, err)
	}
	body := []byte("compressed")
	name, err := c.Commit(ctx, key, "gzip", files, body, composite.CSS, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(name, "2-") || !strings.HasSuffix(name, ".css") {
		t.Errorf("bad name %q", name)
	}
	if _, ok := c.bucket.Object(c.Files.Path(name)); !ok {
		t.Errorf("artifact %s not stored", name)
	}
	p, ok, err := c.Resolve(ctx, key, 2, "gzip")
	if err != nil || !ok {
		t.Fatalf("got %v, %v, want bytes", ok, err)
	}
	if got, want := string(p), "compressed"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	// The uncompressed variant is independent.
	if _, ok, _ := c.Resolve(ctx, key, 2, ""); ok {
		t.Error("uncompressed variant resolved")
	}
}

func TestMissingArtifact(t *testing.T) {
	ctx := context.Background()
	c := newTestCache()
	files := []string{"a.js"}
	key := c.Key(files, 1)
	if err := c.Update(ctx, key, "", files, "1-gone.js", 1); err != nil {
		t.Fatal(err)
	}
	rec, ok, err := c.Lookup(ctx, key, 1, "")
	if err != nil || !ok {
		t.Fatalf("got %v, %v, want record", ok, err)
	}
	if _, ok := c.Bytes(ctx, rec); ok {
		t.Error("missing artifact has bytes")
	}
	// Failures are not remembered.
	if _, err := c.Files.Save(ctx, []byte("late"), "1-gone.js"); err != nil {
		t.Fatal(err)
	}
	p, ok := c.Bytes(ctx, rec)
	if !ok {
		t.Fatal("bytes unavailable")
	}
	if got, want := string(p), "late"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestDisabledStore(t *testing.T) {
	ctx := context.Background()
	a := test.NewInmemoryAssoc()
	c := New(filemap.New(a, nil), composite.New(nil, nil), nil)
	if c.Enabled() {
		t.Fatal("cache is enabled")
	}
	files := []string{"a.js", "b.js"}
	key, err := c.CreateMapIfAbsent(ctx, files, 3)
	if err != nil {
		t.Fatal(err)
	}
	name, err := c.Save(ctx, []byte("x"), composite.JavaScript, 3)
	if name != "" || err != nil {
		t.Errorf("got %q, %v, want empty name", name, err)
	}
	name, err = c.Commit(ctx, key, "", files, []byte("x"), composite.JavaScript, 3)
	if name != "" || err != nil {
		t.Errorf("got %q, %v, want empty name", name, err)
	}
	if err := c.Update(ctx, key, "", files, "3-abc.js", 3); err != nil {
		t.Fatal(err)
	}
	rec, ok, _ := c.Lookup(ctx, key, 3, "")
	if !ok {
		t.Fatal("record not found")
	}
	if _, ok := c.Bytes(ctx, rec); ok {
		t.Error("disabled store has bytes")
	}
	if got, want := a.Puts(), 2; got != want {
		t.Errorf("got %v puts, want %v", got, want)
	}
}

func TestWriteFailure(t *testing.T) {
	ctx := context.Background()
	c := newTestCache()
	c.Files.Bucket = testblob.ErrBucket{Bucket: c.bucket, PutErr: errors.E("put", errors.NotAllowed)}
	files := []string{"a.js"}
	key := c.Key(files, 1)
	if _, err := c.Commit(ctx, key, "", files, []byte("x"), composite.JavaScript, 1); !errors.Is(errors.NotAllowed, err) {
		t.Errorf("got %v, want NotAllowed", err)
	}
	if got, want := c.assoc.Keys(), 0; got != want {
		t.Errorf("got %v records, want %v", got, want)
	}
}

func TestUpdateIf(t *testing.T) {
	ctx := context.Background()
	c := newTestCache()
	files := []string{"a.js"}
	key, err := c.CreateMapIfAbsent(ctx, files, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.UpdateIf(ctx, "", key, "", files, "1-a.js", 1); err != nil {
		t.Fatal(err)
	}
	if err := c.UpdateIf(ctx, "", key, "", files, "1-b.js", 1); !errors.Is(errors.Precondition, err) {
		t.Errorf("got %v, want Precondition", err)
	}
}

func TestConcurrentBuilders(t *testing.T) {
	ctx := context.Background()
	c := newTestCache()
	c.ReadLim = limiter.New()
	c.ReadLim.Release(2)
	c.WriteLim = limiter.New()
	c.WriteLim.Release(2)
	files := []string{"a.js", "b.js", "c.js"}
	const n = 16
	names := make([]string, n)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			key, err := c.CreateMapIfAbsent(gctx, files, 9)
			if err != nil {
				return err
			}
			if _, _, err := c.Resolve(gctx, key, 9, ""); err != nil {
				return err
			}
			names[i], err = c.Commit(gctx, key, "", files, []byte(fmt.Sprint("build ", i)), composite.JavaScript, 9)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	// Last write wins: exactly one of the builds is recorded, and its
	// bytes are served.
	key := c.Key(files, 9)
	rec, ok, err := c.Lookup(ctx, key, 9, "")
	if err != nil || !ok {
		t.Fatalf("got %v, %v, want record", ok, err)
	}
	var winner = -1
	for i, name := range names {
		if name == rec.CompositeFileName {
			winner = i
		}
	}
	if winner < 0 {
		t.Fatalf("record %v names none of the builds", rec)
	}
	p, ok := c.Bytes(ctx, rec)
	if !ok {
		t.Fatal("bytes unavailable")
	}
	if got, want := string(p), fmt.Sprint("build ", winner); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := len(c.bucket.Keys()), n; got != want {
		t.Errorf("got %v artifacts, want %v", got, want)
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	client, err := prometrics.NewClient(reg, "")
	if err != nil {
		t.Fatal(err)
	}
	ctx := metrics.WithClient(context.Background(), client)
	c := newTestCache()
	files := []string{"a.js"}
	key := c.Key(files, 1)
	c.Lookup(ctx, key, 1, "")
	c.CreateMapIfAbsent(ctx, files, 1)
	c.Lookup(ctx, key, 1, "")
	if _, err := c.Commit(ctx, key, "", files, []byte("x"), composite.JavaScript, 1); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := c.Resolve(ctx, key, 1, ""); !ok {
		t.Fatal("commit not resolved")
	}
	for _, m := range []struct {
		counter metrics.Counter
		want    float64
	}{
		{metrics.GetCacheLookupsTotalCounter(ctx, metrics.Miss), 1},
		{metrics.GetCacheLookupsTotalCounter(ctx, metrics.Reserved), 1},
		{metrics.GetCacheLookupsTotalCounter(ctx, metrics.Hit), 1},
		{metrics.GetCompositeWritesTotalCounter(ctx, metrics.Ok), 1},
		{metrics.GetCompositeReadsTotalCounter(ctx, metrics.Hit), 1},
		{metrics.GetFilemapWritesTotalCounter(ctx, metrics.Ok), 2},
	} {
		if got, want := promtestutil.ToFloat64(m.counter.(prometheus.Counter)), m.want; got != want {
			t.Errorf("%v: got %v, want %v", m.counter, got, want)
		}
	}
}
