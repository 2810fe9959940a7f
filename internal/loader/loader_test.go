// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package loader

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestCheckConsistencyDetectsSizeMismatch is spec.md §8 scenario S6:
// tracking table says f1 is 100 bytes, disk says 99; Loader must
// refuse with InconsistentStateError.
func TestCheckConsistencyDetectsSizeMismatch(t *testing.T) {
	tracked := []TrackedFile{{FileName: "f1", Size: 100, InsertTime: time.Now()}}
	err := CheckConsistency(tracked, func(string) (int64, error) { return 99, nil })
	if err == nil {
		t.Fatal("expected InconsistentStateError")
	}
	if _, ok := err.(*InconsistentStateError); !ok {
		t.Fatalf("got %T, want *InconsistentStateError", err)
	}
}

func TestCheckConsistencyOK(t *testing.T) {
	tracked := []TrackedFile{{FileName: "f1", Size: 100, InsertTime: time.Now()}}
	err := CheckConsistency(tracked, func(string) (int64, error) { return 100, nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAppendMode(t *testing.T) {
	if AppendMode(nil) {
		t.Fatal("AppendMode(nil) = true, want false")
	}
	if !AppendMode([]TrackedFile{{}}) {
		t.Fatal("AppendMode(non-empty) = false, want true")
	}
}

func TestEnumerateTableFiles(t *testing.T) {
	dir := t.TempDir()
	write := func(name string, size int) {
		if err := os.WriteFile(filepath.Join(dir, name), make([]byte, size), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("hg19.sequenceAnnot.tab", 10)
	write("hg19.sequenceAnnot.sql", 5)
	write("hg19.empty.tab", 0)
	write("malformed", 10)

	files, err := EnumerateTableFiles(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, f := range files {
		names = append(names, f.DB+"."+f.Key.Table+"."+f.Key.Ext)
	}
	want := map[string]bool{"hg19.sequenceAnnot.tab": true, "hg19.sequenceAnnot.sql": true}
	if len(names) != len(want) {
		t.Fatalf("got %v, want keys of %v", names, want)
	}
	for _, n := range names {
		if !want[n] {
			t.Errorf("unexpected file %s in result", n)
		}
	}
}

func TestEnumerateTableFilesSkipsTracked(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hg19.sequenceAnnot.tab")
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		t.Fatal(err)
	}
	files, err := EnumerateTableFiles(dir, map[string]bool{abs: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 0 {
		t.Fatalf("got %d files, want 0 (already tracked)", len(files))
	}
}

func TestLoadJobChoosesCommandByExtension(t *testing.T) {
	bed, err := LoadJob(TableFile{DB: "hg19", Key: TableFileKey{Table: "markerAnnot", Ext: "bed"}, Path: "/x/hg19.markerAnnot.bed"}, "pubs", false)
	if err != nil {
		t.Fatal(err)
	}
	if bed.Argv[0] != "hgLoadBed" {
		t.Errorf("bed job argv[0] = %s, want hgLoadBed", bed.Argv[0])
	}

	tab, err := LoadJob(TableFile{DB: "hg19", Key: TableFileKey{Table: "article", Ext: "tab"}, Path: "/x/hg19.article.tab"}, "pubs", true)
	if err != nil {
		t.Fatal(err)
	}
	if tab.Argv[0] != "hgLoadSqlTab" {
		t.Errorf("tab job argv[0] = %s, want hgLoadSqlTab", tab.Argv[0])
	}
	found := false
	for _, a := range tab.Argv {
		if a == "-oldTable" {
			found = true
		}
	}
	if !found {
		t.Error("append mode job missing -oldTable flag")
	}
}
