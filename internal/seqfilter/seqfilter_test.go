// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package seqfilter

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kortschak/pubs/internal/annotation"
)

func TestDedupSeen(t *testing.T) {
	dir := t.TempDir()
	d, err := OpenDedup(filepath.Join(dir, "dedup.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	seen, err := d.Seen(1, "ACGT")
	if err != nil || seen {
		t.Fatalf("first Seen: seen=%v err=%v, want false,nil", seen, err)
	}
	seen, err = d.Seen(1, "ACGT")
	if err != nil || !seen {
		t.Fatalf("repeat Seen: seen=%v err=%v, want true,nil", seen, err)
	}
	seen, err = d.Seen(2, "ACGT")
	if err != nil || seen {
		t.Fatalf("different article Seen: seen=%v err=%v, want false,nil", seen, err)
	}
}

func TestFilterDropsDuplicatesAndOutOfRange(t *testing.T) {
	dir := t.TempDir()
	d, err := OpenDedup(filepath.Join(dir, "dedup.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	var src bytes.Buffer
	w := annotation.NewSeqWriter(&src)
	rows := []annotation.SeqAnnotation{
		{AnnotID: 100000000001, Start: 0, End: 4, Seq: "ACGT"},
		{AnnotID: 100000000001, Start: 0, End: 4, Seq: "ACGT"}, // duplicate, same article
		{AnnotID: 100000001002, Start: 0, End: 4, Seq: "ACGT"}, // different article, not dup
		{AnnotID: 100000000001, Start: 0, End: 2, Seq: "AC"},   // too short
	}
	for _, r := range rows {
		if err := w.Write(r); err != nil {
			t.Fatal(err)
		}
	}

	toArticle := func(annotID uint64) uint64 { return annotID / 1000 }

	var dst bytes.Buffer
	kept, dropped, err := Filter(&dst, &src, d, toArticle, 3, 100)
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	if kept != 2 {
		t.Errorf("kept = %d, want 2", kept)
	}
	if dropped != 2 {
		t.Errorf("dropped = %d, want 2", dropped)
	}
}

type memShard struct {
	*bytes.Buffer
}

func (memShard) Close() error { return nil }

func TestFastaShardWriterRollsOverOnArticleBoundary(t *testing.T) {
	var shards []*bytes.Buffer
	newShard := func(i int) (io.WriteCloser, error) {
		b := new(bytes.Buffer)
		shards = append(shards, b)
		return memShard{b}, nil
	}
	fw := NewFastaShardWriter(10, newShard)
	if err := fw.WriteSeq(1, "s1", "", "ACGTACGTAC"); err != nil {
		t.Fatal(err)
	}
	if err := fw.WriteSeq(1, "s2", "", "GGGG"); err != nil {
		t.Fatal(err)
	}
	if err := fw.WriteSeq(2, "s3", "", "TTTT"); err != nil {
		t.Fatal(err)
	}
	if err := fw.Close(); err != nil {
		t.Fatal(err)
	}

	if len(shards) != 2 {
		t.Fatalf("got %d shards, want 2 (article boundary should force rollover once over size)", len(shards))
	}
	if !strings.Contains(shards[0].String(), "s1") || !strings.Contains(shards[0].String(), "s2") {
		t.Errorf("shard 0 missing article 1 records:\n%s", shards[0].String())
	}
	if !strings.Contains(shards[1].String(), "s3") {
		t.Errorf("shard 1 missing article 2 record:\n%s", shards[1].String())
	}
}
