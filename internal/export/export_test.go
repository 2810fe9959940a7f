// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package export

import (
	"strings"
	"testing"

	"github.com/kortschak/pubs/internal/annotation"
)

func sampleInput(t *testing.T) string {
	var buf strings.Builder
	w := annotation.NewSeqWriter(&buf)
	if err := w.Write(annotation.SeqAnnotation{AnnotID: 1, Seq: "ACGTACGTAC", Snippet: "hit"}); err != nil {
		t.Fatal(err)
	}
	return buf.String()
}

func TestWriteFasta(t *testing.T) {
	var out strings.Builder
	n, err := WriteFasta(&out, strings.NewReader(sampleInput(t)))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("wrote %d records, want 1", n)
	}
	if !strings.HasPrefix(out.String(), ">1 hit") {
		t.Fatalf("unexpected FASTA header: %q", out.String())
	}
}

func TestWriteCDR3Fasta(t *testing.T) {
	var out strings.Builder
	find := func(seq string) (string, bool) { return "CASSQ", true }
	n, err := WriteCDR3Fasta(&out, strings.NewReader(sampleInput(t)), find)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("wrote %d records, want 1", n)
	}
	if !strings.Contains(out.String(), "CDR3=CASSQ") {
		t.Fatalf("missing CDR3 tag: %q", out.String())
	}
}
