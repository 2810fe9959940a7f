// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pathmodel

import (
	"os"
	"path/filepath"
	"testing"
)

func writeListMkdir(dir, name string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644)
}

func TestNewBatchAndFindCurrent(t *testing.T) {
	dir := t.TempDir()

	if _, ok, err := FindCurrentBatch(dir, "ds1"); err != nil || ok {
		t.Fatalf("FindCurrentBatch on empty root: ok=%v err=%v", ok, err)
	}

	b0, err := NewBatch(dir, "ds1")
	if err != nil {
		t.Fatalf("NewBatch: %v", err)
	}
	if b0.ID != 0 {
		t.Fatalf("first batch id = %d, want 0", b0.ID)
	}

	p := PathModel{Dataset: "ds1", OutDir: dir, Batch: b0}
	for _, s := range []BatchState{StateCreated, StateAnnot, StateFilter, StateBlat, StateSort, StateChain, StateIdentifiers, StateTables} {
		if err := p.MarkComplete(s); err != nil {
			t.Fatalf("MarkComplete(%s): %v", s, err)
		}
	}

	b1, err := NewBatch(dir, "ds1")
	if err != nil {
		t.Fatalf("NewBatch (second): %v", err)
	}
	if b1.ID != 1 {
		t.Fatalf("second batch id = %d, want 1", b1.ID)
	}

	cur, ok, err := FindCurrentBatch(dir, "ds1")
	if err != nil || !ok {
		t.Fatalf("FindCurrentBatch: ok=%v err=%v", ok, err)
	}
	if cur.ID != 1 {
		t.Errorf("FindCurrentBatch = %d, want 1 (batch 1 has not reached tables)", cur.ID)
	}
}

func TestNextState(t *testing.T) {
	dir := t.TempDir()
	b, err := NewBatch(dir, "ds1")
	if err != nil {
		t.Fatalf("NewBatch: %v", err)
	}
	p := PathModel{Dataset: "ds1", OutDir: dir, Batch: b}

	next, err := p.NextState()
	if err != nil || next != StateCreated {
		t.Fatalf("NextState on fresh batch = %q, %v; want %q, nil", next, err, StateCreated)
	}

	if err := p.MarkComplete(StateCreated); err != nil {
		t.Fatal(err)
	}
	next, err = p.NextState()
	if err != nil || next != StateAnnot {
		t.Fatalf("NextState after created = %q, %v; want %q, nil", next, err, StateAnnot)
	}
}

func TestReadWriteList(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ids.txt")

	if got, err := ReadList(path); err != nil || got != nil {
		t.Fatalf("ReadList on missing file: %v, %v", got, err)
	}

	want := []string{"a1", "a2", "a3"}
	if err := WriteList(path, want); err != nil {
		t.Fatal(err)
	}
	got, err := ReadList(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(want) {
		t.Fatalf("ReadList = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ReadList[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestNewBatchRejectsNonEmptyDir(t *testing.T) {
	dir := t.TempDir()
	if _, err := NewBatch(dir, "ds1"); err != nil {
		t.Fatal(err)
	}

	// The next batch id NewBatch would pick (1) already has stray
	// content on disk; NewBatch must refuse to reuse it.
	strayDir := filepath.Join(dir, "ds1", "batches", "1")
	if err := WriteList(filepath.Join(strayDir, "leftover.txt"), nil); err == nil {
		t.Fatal("expected WriteList to fail: parent directory does not exist yet")
	}
	if err := writeListMkdir(strayDir, "leftover.txt"); err != nil {
		t.Fatal(err)
	}

	if _, err := NewBatch(dir, "ds1"); err == nil {
		t.Fatal("expected InconsistentStateError reusing an occupied batch id")
	}
}
