// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sortlift

import (
	"strings"
	"testing"

	"github.com/kortschak/pubs/internal/psl"
)

func TestSortByTarget(t *testing.T) {
	records := []psl.Record{
		{TName: "hg19,chr2,g", TStart: 10},
		{TName: "hg19,chr1,g", TStart: 50},
		{TName: "hg19,chr1,g", TStart: 5},
	}
	SortByTarget(records)
	want := []int{5, 50, 10}
	for i, r := range records {
		if r.TStart != want[i] {
			t.Fatalf("record %d tStart = %d, want %d", i, r.TStart, want[i])
		}
	}
}

func TestLiftMissingMappingIsTolerant(t *testing.T) {
	m := Mapping{}
	r := psl.Record{TName: psl.JoinTarget("hg19", "NM_000001", psl.CDNA), TStart: 10, TEnd: 20}
	_, err := m.Lift(r)
	if err == nil {
		t.Fatal("expected LiftError for unmapped cDNA target")
	}
	if _, ok := err.(*LiftError); !ok {
		t.Fatalf("got %T, want *LiftError", err)
	}
}

func TestLiftRewritesCoordinates(t *testing.T) {
	mapping := psl.Record{
		QName: "NM_000001", TName: "chr1",
		TSize:      200000,
		QStarts:    []int{0, 50},
		TStarts:    []int{1000, 2000},
		BlockSizes: []int{50, 50},
	}
	m := Mapping{"NM_000001": mapping}

	r := psl.Record{
		TName:      psl.JoinTarget("hg19", "NM_000001", psl.CDNA),
		TStart:     10,
		TEnd:       60,
		TStarts:    []int{10},
		BlockSizes: []int{50},
	}
	lifted, err := m.Lift(r)
	if err != nil {
		t.Fatal(err)
	}
	db, chrom, seqType, err := lifted.Target()
	if err != nil {
		t.Fatal(err)
	}
	if db != "hg19" || chrom != "chr1" || seqType != psl.CDNA {
		t.Fatalf("lifted target = %s,%s,%c", db, chrom, seqType)
	}
	if lifted.TStart != 1010 {
		t.Fatalf("lifted tStart = %d, want 1010", lifted.TStart)
	}
}

func TestProcessConcatenatesAndSorts(t *testing.T) {
	var buf strings.Builder
	rec1 := psl.Record{TName: "hg19,chr1,g", TStart: 100}
	rec2 := psl.Record{TName: "hg19,chr1,g", TStart: 10}
	rec1.WriteTo(&buf)
	rec2.WriteTo(&buf)

	raw := ReadAll(strings.NewReader(buf.String()))
	if len(raw) != 2 {
		t.Fatalf("got %d records, want 2", len(raw))
	}
	out := Process(raw, nil)
	if out[0].TStart != 10 || out[1].TStart != 100 {
		t.Fatalf("Process did not sort: %+v", out)
	}
}
