// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package export implements the Exporter utility: dumping filtered
// sequence annotations to FASTA, either plain (the "expFasta" CLI
// step) or tagged with a CDR3 region call in the description line (the
// "expCdr3" step, for immune-receptor datasets). Grounded on the
// teacher's FASTA writer idiom in cmd/ins/fragment.go/cmd/ins/blast.go
// (the "%60a" biogo seqio/fasta verb), same as internal/seqfilter's
// shard writer.
package export

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/seq/linear"

	"github.com/kortschak/pubs/internal/annotation"
)

// WriteFasta dumps every SeqAnnotation scanned from src as a FASTA
// record to dst, with the annotId as the record id and the snippet as
// its description.
func WriteFasta(dst io.Writer, src io.Reader) (n int, err error) {
	sc, err := annotation.NewSeqScanner(src)
	if err != nil {
		return 0, err
	}
	for sc.Scan() {
		a := sc.Record()
		if err := writeRecord(dst, strconv.FormatUint(a.AnnotID, 10), a.Snippet, a.Seq); err != nil {
			return n, err
		}
		n++
	}
	if err := sc.Err(); err != nil {
		if _, ok := err.(*annotation.DataError); !ok {
			return n, err
		}
	}
	return n, nil
}

// CDR3Finder locates the CDR3 region, if any, within a recognized
// sequence. Returning ok=false leaves the sequence untagged.
type CDR3Finder func(seq string) (region string, ok bool)

// WriteCDR3Fasta dumps every SeqAnnotation scanned from src as a FASTA
// record, appending "|CDR3=<region>" to the description whenever find
// locates a CDR3 region, the "expCdr3" step's annotated variant of
// WriteFasta.
func WriteCDR3Fasta(dst io.Writer, src io.Reader, find CDR3Finder) (n int, err error) {
	sc, err := annotation.NewSeqScanner(src)
	if err != nil {
		return 0, err
	}
	for sc.Scan() {
		a := sc.Record()
		desc := a.Snippet
		if region, ok := find(a.Seq); ok {
			desc = fmt.Sprintf("%s|CDR3=%s", desc, region)
		}
		if err := writeRecord(dst, strconv.FormatUint(a.AnnotID, 10), desc, a.Seq); err != nil {
			return n, err
		}
		n++
	}
	if err := sc.Err(); err != nil {
		if _, ok := err.(*annotation.DataError); !ok {
			return n, err
		}
	}
	return n, nil
}

func writeRecord(dst io.Writer, id, desc, seq string) error {
	s := linear.NewSeq(id, alphabet.BytesToLetters([]byte(seq)), alphabet.DNA)
	s.Desc = desc
	var buf bytes.Buffer
	if _, err := fmt.Fprintf(&buf, "%60a\n", s); err != nil {
		return err
	}
	_, err := dst.Write(buf.Bytes())
	return err
}
