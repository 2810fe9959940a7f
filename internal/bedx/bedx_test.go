// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bedx

import (
	"fmt"
	"strings"
	"testing"

	"github.com/biogo/biogo/seq"
)

func TestWriteTo(t *testing.T) {
	f := Feature{
		Chrom: "chr1", Start: 100, End: 200, Name: "art1",
		Score: 500, Strand: seq.Strand(1), ThickStart: 100, ThickEnd: 200,
		ItemRGB: "0", BlockSizes: []int{50, 50}, BlockStarts: []int{0, 50},
		AnnotID: 440002039500000012, MarkerNames: []string{"BRCA1", "BRCA2"},
	}
	var buf strings.Builder
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	want := "chr1\t100\t200\tart1\t500\t+\t100\t200\t0\t2\t50,50,\t0,50,\t440002039500000012\tBRCA1,BRCA2\n"
	if buf.String() != want {
		t.Errorf("got  %q\nwant %q", buf.String(), want)
	}
}

func TestSortByPosition(t *testing.T) {
	fs := []Feature{
		{Chrom: "chr2", Start: 10, End: 20},
		{Chrom: "chr1", Start: 50, End: 60},
		{Chrom: "chr1", Start: 10, End: 20},
	}
	SortByPosition(fs)
	want := []string{"chr1@10", "chr1@50", "chr2@10"}
	for i, w := range want {
		got := fmt.Sprintf("%s@%d", fs[i].Chrom, fs[i].Start)
		if got != w {
			t.Errorf("position %d: got %s, want %s", i, got, w)
		}
	}
}

func TestOverlaps(t *testing.T) {
	a := Feature{Chrom: "chr1", Start: 100, End: 200}
	b := Feature{Chrom: "chr1", Start: 150, End: 250}
	c := Feature{Chrom: "chr1", Start: 200, End: 300}
	d := Feature{Chrom: "chr2", Start: 150, End: 250}
	if !a.Overlaps(b) {
		t.Error("a,b should overlap")
	}
	if a.Overlaps(c) {
		t.Error("a,c should not overlap (half-open adjacency)")
	}
	if a.Overlaps(d) {
		t.Error("a,d should not overlap (different chrom)")
	}
}
