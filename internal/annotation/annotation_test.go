// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package annotation

import (
	"bytes"
	"reflect"
	"strings"
	"testing"
)

func TestSeqWriteScanRoundTrip(t *testing.T) {
	want := []SeqAnnotation{
		{AnnotID: 440002039500000012, Start: 10, End: 25, Seq: "ACGT", Snippet: "some context", Dbs: []string{"hg19", "mm10"}, PrefixFilterAccept: "Y", SuffixFilterAccept: "Y"},
		{AnnotID: 440002039500000013, Start: 30, End: 34, Seq: "TTTT", Snippet: ""},
	}
	var buf bytes.Buffer
	wr := NewSeqWriter(&buf)
	for _, a := range want {
		if err := wr.Write(a); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	sc, err := NewSeqScanner(&buf)
	if err != nil {
		t.Fatalf("NewSeqScanner: %v", err)
	}
	var got []SeqAnnotation
	for sc.Scan() {
		got = append(got, sc.Record())
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("Scanner error: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d rows, want %d", len(got), len(want))
	}
	for i := range want {
		if !reflect.DeepEqual(got[i], want[i]) {
			t.Errorf("row %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestSeqScannerRejectsBadHeader(t *testing.T) {
	_, err := NewSeqScanner(strings.NewReader("wrong\theader\n"))
	if err == nil {
		t.Fatal("expected DataError for bad header")
	}
}

func TestSeqScannerSkipsMalformedRow(t *testing.T) {
	input := strings.Join(seqHeader, "\t") + "\n" +
		"440002039500000012\t10\t25\tACGT\tok\thg19\tY\tY\n" +
		"not-enough-fields\n" +
		"440002039500000013\t30\t34\tTTTT\tok2\t\t\t\n"
	sc, err := NewSeqScanner(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	var n int
	for sc.Scan() {
		n++
	}
	if n != 2 {
		t.Fatalf("got %d valid rows, want 2", n)
	}
}

func TestMarkerWriteScanRoundTrip(t *testing.T) {
	want := MarkerAnnotation{
		AnnotID: 1, Type: "symbol", MarkerID: "BRCA1",
		RecogType: "exact", RecogID: "rs123", Section: "abstract", Snippet: "BRCA1 mutation",
	}
	var buf bytes.Buffer
	wr := NewMarkerWriter(&buf)
	if err := wr.Write(want); err != nil {
		t.Fatal(err)
	}
	sc, err := NewMarkerScanner(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if !sc.Scan() {
		t.Fatal("expected one row")
	}
	if got := sc.Record(); got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}
