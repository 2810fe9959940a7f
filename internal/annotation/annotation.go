// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package annotation defines the explicit record types for the
// per-article annotation rows produced by the text-mining stage that
// precedes alignment: one row per recognized sequence or marker
// mention, keyed by a composite annotId (internal/annotid). The
// original's rows were untyped, header-driven tab fields
// (maxCommon.iterTsvRows); here they are concrete structs with a
// header-checked tabular codec.
package annotation

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// SeqAnnotation is one recognized DNA/protein sequence mention.
type SeqAnnotation struct {
	AnnotID uint64
	Start   int
	End     int
	Seq     string
	Snippet string

	// Dbs lists the target genomes this sequence should be aligned
	// against, from the annotator's own db-hint computation; empty
	// means "use the dataset's default genome set" (spec.md §4.4).
	Dbs []string

	// PrefixFilterAccept and SuffixFilterAccept are the protein
	// annotator's flanking-context filter calls ("Y"/"N"); only
	// protein rows accepted on both ends survive SeqFilter.
	PrefixFilterAccept string
	SuffixFilterAccept string
}

var seqHeader = []string{"annotId", "start", "end", "seq", "snippet", "dbs", "prefixFilterAccept", "suffixFilterAccept"}

// MarkerAnnotation is one recognized gene/marker mention.
type MarkerAnnotation struct {
	AnnotID   uint64
	Type      string
	MarkerID  string
	RecogType string
	RecogID   string
	Section   string
	Snippet   string
}

var markerHeader = []string{"annotId", "type", "markerId", "recogType", "recogId", "section", "snippet"}

// DataError reports a malformed annotation row. Callers should log and
// skip it rather than abort the enclosing scan, per the error
// taxonomy's row-level DataError category.
type DataError struct {
	Reason string
}

func (e *DataError) Error() string { return "annotation: " + e.Reason }

// SeqWriter writes a header line followed by tab-separated
// SeqAnnotation rows.
type SeqWriter struct {
	w           io.Writer
	wroteHeader bool
}

// NewSeqWriter returns a SeqWriter over w.
func NewSeqWriter(w io.Writer) *SeqWriter { return &SeqWriter{w: w} }

// Write appends a as one row, writing the header line first if this is
// the writer's first call.
func (sw *SeqWriter) Write(a SeqAnnotation) error {
	if !sw.wroteHeader {
		if _, err := io.WriteString(sw.w, strings.Join(seqHeader, "\t")+"\n"); err != nil {
			return err
		}
		sw.wroteHeader = true
	}
	row := []string{
		strconv.FormatUint(a.AnnotID, 10),
		strconv.Itoa(a.Start),
		strconv.Itoa(a.End),
		a.Seq,
		a.Snippet,
		strings.Join(a.Dbs, ","),
		a.PrefixFilterAccept,
		a.SuffixFilterAccept,
	}
	_, err := io.WriteString(sw.w, strings.Join(row, "\t")+"\n")
	return err
}

// SeqScanner reads SeqAnnotation rows from a header-led tab file.
type SeqScanner struct {
	sc  *bufio.Scanner
	rec SeqAnnotation
	err error
}

// NewSeqScanner returns a SeqScanner over r, consuming and validating
// the header line immediately. DataError is returned if the header
// does not match the expected column set.
func NewSeqScanner(r io.Reader) (*SeqScanner, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, err
		}
		return nil, &DataError{Reason: "empty annotation file, no header"}
	}
	got := strings.Split(sc.Text(), "\t")
	if !equalHeader(got, seqHeader) {
		return nil, &DataError{Reason: fmt.Sprintf("unexpected header %v, want %v", got, seqHeader)}
	}
	return &SeqScanner{sc: sc}, nil
}

func equalHeader(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

// Scan advances to the next record, skipping (and recording) malformed
// rows rather than aborting.
func (s *SeqScanner) Scan() bool {
	for s.sc.Scan() {
		line := s.sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		rec, err := parseSeqRow(line)
		if err != nil {
			s.err = err
			continue
		}
		s.rec = rec
		return true
	}
	return false
}

// Record returns the row most recently produced by Scan.
func (s *SeqScanner) Record() SeqAnnotation { return s.rec }

// Err returns the most recent DataError, or the underlying scanner
// error.
func (s *SeqScanner) Err() error {
	if err := s.sc.Err(); err != nil {
		return err
	}
	return s.err
}

func parseSeqRow(line string) (SeqAnnotation, error) {
	f := strings.Split(line, "\t")
	if len(f) != len(seqHeader) {
		return SeqAnnotation{}, &DataError{Reason: fmt.Sprintf("expected %d fields, got %d: %q", len(seqHeader), len(f), line)}
	}
	var a SeqAnnotation
	var err error
	a.AnnotID, err = strconv.ParseUint(f[0], 10, 64)
	if err != nil {
		return SeqAnnotation{}, &DataError{Reason: "annotId: " + err.Error()}
	}
	a.Start, err = strconv.Atoi(f[1])
	if err != nil {
		return SeqAnnotation{}, &DataError{Reason: "start: " + err.Error()}
	}
	a.End, err = strconv.Atoi(f[2])
	if err != nil {
		return SeqAnnotation{}, &DataError{Reason: "end: " + err.Error()}
	}
	a.Seq = f[3]
	a.Snippet = f[4]
	if f[5] != "" {
		a.Dbs = strings.Split(f[5], ",")
	}
	a.PrefixFilterAccept = f[6]
	a.SuffixFilterAccept = f[7]
	return a, nil
}

// MarkerWriter writes a header line followed by tab-separated
// MarkerAnnotation rows.
type MarkerWriter struct {
	w           io.Writer
	wroteHeader bool
}

// NewMarkerWriter returns a MarkerWriter over w.
func NewMarkerWriter(w io.Writer) *MarkerWriter { return &MarkerWriter{w: w} }

// Write appends a as one row.
func (mw *MarkerWriter) Write(a MarkerAnnotation) error {
	if !mw.wroteHeader {
		if _, err := io.WriteString(mw.w, strings.Join(markerHeader, "\t")+"\n"); err != nil {
			return err
		}
		mw.wroteHeader = true
	}
	row := []string{
		strconv.FormatUint(a.AnnotID, 10),
		a.Type, a.MarkerID, a.RecogType, a.RecogID, a.Section, a.Snippet,
	}
	_, err := io.WriteString(mw.w, strings.Join(row, "\t")+"\n")
	return err
}

// MarkerScanner reads MarkerAnnotation rows from a header-led tab file.
type MarkerScanner struct {
	sc  *bufio.Scanner
	rec MarkerAnnotation
	err error
}

// NewMarkerScanner returns a MarkerScanner over r, consuming and
// validating the header line immediately.
func NewMarkerScanner(r io.Reader) (*MarkerScanner, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, err
		}
		return nil, &DataError{Reason: "empty annotation file, no header"}
	}
	got := strings.Split(sc.Text(), "\t")
	if !equalHeader(got, markerHeader) {
		return nil, &DataError{Reason: fmt.Sprintf("unexpected header %v, want %v", got, markerHeader)}
	}
	return &MarkerScanner{sc: sc}, nil
}

// Scan advances to the next record.
func (s *MarkerScanner) Scan() bool {
	for s.sc.Scan() {
		line := s.sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		rec, err := parseMarkerRow(line)
		if err != nil {
			s.err = err
			continue
		}
		s.rec = rec
		return true
	}
	return false
}

// Record returns the row most recently produced by Scan.
func (s *MarkerScanner) Record() MarkerAnnotation { return s.rec }

// Err returns the most recent DataError, or the underlying scanner
// error.
func (s *MarkerScanner) Err() error {
	if err := s.sc.Err(); err != nil {
		return err
	}
	return s.err
}

func parseMarkerRow(line string) (MarkerAnnotation, error) {
	f := strings.Split(line, "\t")
	if len(f) != len(markerHeader) {
		return MarkerAnnotation{}, &DataError{Reason: fmt.Sprintf("expected %d fields, got %d: %q", len(markerHeader), len(f), line)}
	}
	id, err := strconv.ParseUint(f[0], 10, 64)
	if err != nil {
		return MarkerAnnotation{}, &DataError{Reason: "annotId: " + err.Error()}
	}
	return MarkerAnnotation{
		AnnotID: id, Type: f[1], MarkerID: f[2], RecogType: f[3],
		RecogID: f[4], Section: f[5], Snippet: f[6],
	}, nil
}
