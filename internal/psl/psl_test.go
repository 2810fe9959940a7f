// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package psl

import (
	"strings"
	"testing"
)

const sampleLine = "100\t0\t0\t0\t0\t0\t0\t0\t+\tquery1\t100\t0\t100\thg38,chr1,g\t248956422\t1000\t1100\t1\t100,\t0,\t1000,\n"

func TestParseRecordRoundTrip(t *testing.T) {
	r, err := ParseRecord(sampleLine)
	if err != nil {
		t.Fatalf("ParseRecord: %v", err)
	}
	if r.QName != "query1" || r.TName != "hg38,chr1,g" {
		t.Fatalf("unexpected parse: %+v", r)
	}
	if r.TStart != 1000 || r.TEnd != 1100 {
		t.Fatalf("unexpected coordinates: %+v", r)
	}

	var buf strings.Builder
	if _, err := r.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if buf.String() != sampleLine {
		t.Errorf("round trip mismatch:\n got  %q\n want %q", buf.String(), sampleLine)
	}
}

func TestTargetSplitJoin(t *testing.T) {
	r := Record{TName: "hg38,chr1,g"}
	db, chrom, seqType, err := r.Target()
	if err != nil {
		t.Fatalf("Target: %v", err)
	}
	if db != "hg38" || chrom != "chr1" || seqType != Genome {
		t.Fatalf("Target() = %q,%q,%q", db, chrom, seqType)
	}
	if got := JoinTarget(db, chrom, seqType); got != r.TName {
		t.Errorf("JoinTarget = %q, want %q", got, r.TName)
	}
}

func TestTargetMalformed(t *testing.T) {
	r := Record{TName: "hg38,chr1"}
	if _, _, _, err := r.Target(); err == nil {
		t.Fatal("expected DataError for malformed target name")
	} else if _, ok := err.(*DataError); !ok {
		t.Errorf("expected *DataError, got %T", err)
	}
}

func TestScannerSkipsHeaderAndBadRows(t *testing.T) {
	input := "psLayout version 3\n\nmatch\tmis\t...\n" +
		"-----------------------------------\n" +
		sampleLine +
		"not-a-number\twrong\n" +
		sampleLine
	sc := NewScanner(strings.NewReader(input))

	var n int
	for sc.Scan() {
		n++
		if sc.Record().QName != "query1" {
			t.Errorf("record %d: QName = %q", n, sc.Record().QName)
		}
	}
	if n != 2 {
		t.Fatalf("got %d records, want 2", n)
	}
}
