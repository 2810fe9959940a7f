// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package table

import (
	"strings"
	"testing"

	"github.com/kortschak/pubs/internal/annotation"
	"github.com/kortschak/pubs/internal/annotid"
)

func TestSanitizeYear(t *testing.T) {
	cases := map[string]int{
		"2020": 2020,
		"":     0,
		"-5":   0,
		"abc":  0,
	}
	for in, want := range cases {
		if got := SanitizeYear(in); got != want {
			t.Errorf("SanitizeYear(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestSanitizePMID(t *testing.T) {
	if got := SanitizePMID(""); got != 0 {
		t.Errorf("SanitizePMID(\"\") = %d, want 0", got)
	}
	if got := SanitizePMID("12345"); got != 12345 {
		t.Errorf("SanitizePMID(12345) = %d, want 12345", got)
	}
}

func TestFirstAuthor(t *testing.T) {
	if got := FirstAuthor("Smith J; Doe A"); got != "Smith J" {
		t.Errorf("FirstAuthor = %q, want %q", got, "Smith J")
	}
	if got := FirstAuthor(""); got != "" {
		t.Errorf("FirstAuthor(\"\") = %q, want empty", got)
	}
}

func TestRewriteMarkersCountsDistinctArticles(t *testing.T) {
	digits := annotid.Digits{Article: 10, File: 3, Annot: 5}
	markers := []annotation.MarkerAnnotation{
		{AnnotID: digits.Compose(1, 0, 0), MarkerID: "BRCA1"},
		{AnnotID: digits.Compose(1, 0, 1), MarkerID: "BRCA1"}, // same article, same marker
		{AnnotID: digits.Compose(2, 0, 0), MarkerID: "BRCA1"}, // different article
		{AnnotID: digits.Compose(3, 0, 0), MarkerID: "TP53"},
	}

	sorted, counts := RewriteMarkers(markers, digits)
	if len(sorted) != 4 {
		t.Fatalf("got %d sorted rows, want 4", len(sorted))
	}
	byMarker := make(map[string]int)
	for _, c := range counts {
		byMarker[c.MarkerID] = c.Articles
	}
	if byMarker["BRCA1"] != 2 {
		t.Errorf("BRCA1 article count = %d, want 2", byMarker["BRCA1"])
	}
	if byMarker["TP53"] != 1 {
		t.Errorf("TP53 article count = %d, want 1", byMarker["TP53"])
	}
}

func TestLocusIndexOverlap(t *testing.T) {
	idx, err := BuildLocusIndex([]LociRecord{
		{Chrom: "chr1", Start: 1000, End: 2000, Name: "GENE1"},
		{Chrom: "chr1", Start: 1500, End: 2500, Name: "GENE2"},
		{Chrom: "chr2", Start: 0, End: 100, Name: "GENE3"},
	})
	if err != nil {
		t.Fatal(err)
	}
	got := idx.Overlapping("chr1", 1800, 1900)
	if len(got) != 2 || got[0] != "GENE1" || got[1] != "GENE2" {
		t.Fatalf("Overlapping = %v, want [GENE1 GENE2]", got)
	}
	if got := idx.Overlapping("chr1", 3000, 3100); len(got) != 0 {
		t.Fatalf("Overlapping outside range = %v, want none", got)
	}
}

func TestWriteMarkerCounts(t *testing.T) {
	var buf strings.Builder
	err := WriteMarkerCounts(&buf, []MarkerCount{{MarkerID: "BRCA1", Articles: 2}})
	if err != nil {
		t.Fatal(err)
	}
	if buf.String() != "BRCA1\t2\n" {
		t.Fatalf("got %q", buf.String())
	}
}
