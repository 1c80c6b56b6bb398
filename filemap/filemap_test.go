// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package filemap

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/grailbio/bundlecache"
	"github.com/grailbio/bundlecache/assoc/test"
	"github.com/grailbio/bundlecache/errors"
	"github.com/grailbio/bundlecache/log"
)

type lines []string

func (l *lines) Output(calldepth int, s string) error {
	*l = append(*l, s)
	return nil
}

func newTestMap() (*Map, *test.InmemoryAssoc) {
	a := test.NewInmemoryAssoc()
	return New(a, nil), a
}

func TestIndexKey(t *testing.T) {
	for _, c := range []struct {
		folder, key, compression, want string
	}{
		{DefaultFolder, "abc", "", "~/ClientDependency/Data/Maps/abc.json"},
		{DefaultFolder, "abc", "gzip", "~/ClientDependency/Data/Maps/abc.json.gzip"},
		{"/data/", "abc", "deflate", "/data/Maps/abc.json.deflate"},
	} {
		if got, want := IndexKey(c.folder, c.key, c.compression), c.want; got != want {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}

func TestPutGet(t *testing.T) {
	ctx := context.Background()
	m, a := newTestMap()
	files := []string{"a.js", "b.js"}
	if err := m.Put(ctx, "k1", "gzip", files, "3-abc.js", 3); err != nil {
		t.Fatal(err)
	}
	rec, ok, err := m.Get(ctx, "k1", 3, "gzip")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("record not found")
	}
	if got, want := rec.CompositeFileName, "3-abc.js"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := rec.CompressionType, "gzip"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := rec.FileKey, "k1"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := rec.DependentFiles, files; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	// Compression variants are distinct records.
	if _, ok, _ := m.Get(ctx, "k1", 3, ""); ok {
		t.Error("uncompressed record found")
	}
	// Version mismatch is a miss.
	if _, ok, _ := m.Get(ctx, "k1", 4, "gzip"); ok {
		t.Error("stale record found")
	}
	// Last write wins.
	if err := m.Put(ctx, "k1", "gzip", files, "3-def.js", 3); err != nil {
		t.Fatal(err)
	}
	rec, _, _ = m.Get(ctx, "k1", 3, "gzip")
	if got, want := rec.CompositeFileName, "3-def.js"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := a.Keys(), 1; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestWireFormat(t *testing.T) {
	ctx := context.Background()
	m, a := newTestMap()
	if err := m.Put(ctx, "k", "", nil, "", 1); err != nil {
		t.Fatal(err)
	}
	p, err := a.Get(ctx, IndexKey(DefaultFolder, "k", ""))
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(p, &doc); err != nil {
		t.Fatal(err)
	}
	for _, field := range []string{"fileKey", "compositeFileName", "compressionType", "version", "dependentFiles"} {
		if _, ok := doc[field]; !ok {
			t.Errorf("field %s missing from %s", field, p)
		}
	}
	if got, want := doc["dependentFiles"], []interface{}{}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	// Records written by other producers with PascalCase names decode.
	a.Set(IndexKey(DefaultFolder, "legacy", ""),
		[]byte(`{"FileKey":"legacy","CompositeFileName":"2-aa.css","CompressionType":"","Version":2,"DependentFiles":["x.css"]}`))
	rec, ok, err := m.Get(ctx, "legacy", 2, "")
	if err != nil || !ok {
		t.Fatalf("got %v, %v, want record", ok, err)
	}
	if got, want := rec.CompositeFileName, "2-aa.css"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestInvalid(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMap()
	if _, _, err := m.Get(ctx, "", 1, ""); !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want Invalid", err)
	}
	if err := m.Put(ctx, "", "", nil, "x", 1); !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want Invalid", err)
	}
	if err := m.PutIf(ctx, "", "", "", nil, "x", 1); !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want Invalid", err)
	}
	if _, _, err := m.DependentFiles(ctx, "", 1); !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want Invalid", err)
	}
}

func TestDegradedReads(t *testing.T) {
	ctx := context.Background()
	var out lines
	a := test.NewInmemoryAssoc()
	m := &Map{Assoc: a, Folder: DefaultFolder, Log: log.New(&out, log.ErrorLevel)}

	a.Set(IndexKey(DefaultFolder, "corrupt", ""), []byte("{not json"))
	rec, ok, err := m.Get(ctx, "corrupt", 1, "")
	if rec != nil || ok || err != nil {
		t.Errorf("got %v, %v, %v, want miss", rec, ok, err)
	}
	if len(out) != 1 {
		t.Errorf("got %d log lines, want 1", len(out))
	}

	m.Assoc = &test.ErrAssoc{Assoc: a, GetErr: errors.E("get", errors.Unavailable, errors.New("connection refused"))}
	rec, ok, err = m.Get(ctx, "corrupt", 1, "")
	if rec != nil || ok || err != nil {
		t.Errorf("got %v, %v, %v, want miss", rec, ok, err)
	}
	if len(out) != 2 || !strings.Contains(out[1], "connection refused") {
		t.Errorf("unexpected log %v", out)
	}
}

func TestPutFailure(t *testing.T) {
	ctx := context.Background()
	var out lines
	m := &Map{
		Assoc:  &test.ErrAssoc{Assoc: test.NewInmemoryAssoc(), PutErr: errors.E("put", errors.NotAllowed, errors.New("NOAUTH"))},
		Folder: "/data",
		Log:    log.New(&out, log.ErrorLevel),
	}
	err := m.Put(ctx, "k", "", []string{"a.js"}, "1-a.js", 1)
	if !errors.Is(errors.NotAllowed, err) {
		t.Errorf("got %v, want NotAllowed", err)
	}
	if len(out) != 1 || !strings.Contains(out[0], "/data/Maps/k.json") {
		t.Errorf("unexpected log %v", out)
	}
	key, err := m.CreateMapIfAbsent(ctx, []string{"a.js"}, 1)
	if !errors.Is(errors.NotAllowed, err) {
		t.Errorf("got %v, want NotAllowed", err)
	}
	if got, want := key, bundlecache.Key([]string{"a.js"}, 1); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestDependentFiles(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMap()
	files := []string{"/css/reset.css", "/css/site.css"}
	if err := m.Put(ctx, "k", "", files, "5-ab.css", 5); err != nil {
		t.Fatal(err)
	}
	got, ok, err := m.DependentFiles(ctx, "k", 5)
	if err != nil || !ok {
		t.Fatalf("got %v, %v, want files", ok, err)
	}
	if want := files; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if _, ok, _ := m.DependentFiles(ctx, "k", 6); ok {
		t.Error("stale files found")
	}
	if _, ok, _ := m.DependentFiles(ctx, "other", 5); ok {
		t.Error("missing files found")
	}
}

func TestCreateMapIfAbsent(t *testing.T) {
	ctx := context.Background()
	m, a := newTestMap()
	files := []string{"a.js", "b.js"}
	key, err := m.CreateMapIfAbsent(ctx, files, 3)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := key, bundlecache.Key(files, 3); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	rec, ok, err := m.Get(ctx, key, 3, "")
	if err != nil || !ok {
		t.Fatalf("got %v, %v, want reservation", ok, err)
	}
	if !rec.Reserved() {
		t.Errorf("record %v is not a reservation", rec)
	}
	if got, want := rec.DependentFiles, files; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	// Reserving again is a no-op.
	key2, err := m.CreateMapIfAbsent(ctx, files, 3)
	if err != nil {
		t.Fatal(err)
	}
	if key2 != key {
		t.Errorf("got %v, want %v", key2, key)
	}
	if got, want := a.Puts(), 1; got != want {
		t.Errorf("got %v puts, want %v", got, want)
	}
	// A built record is not clobbered by a reservation.
	if err := m.Put(ctx, key, "", files, "3-abc.js", 3); err != nil {
		t.Fatal(err)
	}
	if _, err := m.CreateMapIfAbsent(ctx, files, 3); err != nil {
		t.Fatal(err)
	}
	rec, _, _ = m.Get(ctx, key, 3, "")
	if got, want := rec.CompositeFileName, "3-abc.js"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestPutIf(t *testing.T) {
	ctx := context.Background()
	m, a := newTestMap()
	files := []string{"a.js"}
	// Absent records have the empty name.
	if err := m.PutIf(ctx, "1-x.js", "k", "", files, "1-y.js", 1); !errors.Is(errors.Precondition, err) {
		t.Errorf("got %v, want Precondition", err)
	}
	if err := m.PutIf(ctx, "", "k", "", files, "1-a.js", 1); err != nil {
		t.Fatal(err)
	}
	if err := m.PutIf(ctx, "", "k", "", files, "1-b.js", 1); !errors.Is(errors.Precondition, err) {
		t.Errorf("got %v, want Precondition", err)
	}
	if err := m.PutIf(ctx, "1-a.js", "k", "", files, "1-b.js", 1); err != nil {
		t.Fatal(err)
	}
	rec, _, _ := m.Get(ctx, "k", 1, "")
	if got, want := rec.CompositeFileName, "1-b.js"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	// Stale records have the empty name.
	if err := m.PutIf(ctx, "", "k", "", files, "2-a.js", 2); err != nil {
		t.Fatal(err)
	}
	// So do corrupt ones.
	a.Set(IndexKey(DefaultFolder, "c", ""), []byte("garbage"))
	if err := m.PutIf(ctx, "", "c", "", files, "1-c.js", 1); err != nil {
		t.Fatal(err)
	}
	rec, ok, _ := m.Get(ctx, "c", 1, "")
	if !ok || rec.CompositeFileName != "1-c.js" {
		t.Errorf("got %v, want 1-c.js", rec)
	}
	// Read failures are reported.
	m.Assoc = &test.ErrAssoc{Assoc: a, GetErr: errors.E("get", errors.Unavailable)}
	if err := m.PutIf(ctx, "", "z", "", files, "1-z.js", 1); !errors.Is(errors.Unavailable, err) {
		t.Errorf("got %v, want Unavailable", err)
	}
}
