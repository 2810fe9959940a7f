// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package psl provides the alignment record type exchanged between the
// aligner, SortLift and ChainEngine stages, and its tabular (PSL)
// encoding. The target name column carries three comma-joined
// components, "db,chrom,seqType" — see Record.Target and SplitTarget.
package psl

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// SeqType identifies which of the three alignment groups a Record came
// from: genome, cDNA or protein.
type SeqType byte

const (
	Genome  SeqType = 'g'
	CDNA    SeqType = 'c'
	Protein SeqType = 'p'
)

func (s SeqType) String() string { return string(s) }

// Record is one PSL alignment line. Field names follow the standard
// aligner table; coordinates are 0-based half-open, matching the
// on-disk PSL convention.
type Record struct {
	Matches   int
	MisMatches int
	RepMatches int
	NCount    int
	QNumInsert int
	QBaseInsert int
	TNumInsert int
	TBaseInsert int
	Strand    string
	QName     string
	QSize     int
	QStart    int
	QEnd      int
	TName     string // raw target name, "db,chrom,seqType"
	TSize     int
	TStart    int
	TEnd      int
	BlockCount int
	BlockSizes []int
	QStarts   []int
	TStarts   []int
}

// Target decomposes TName into its db, chrom and seqType components.
// DataError is returned if TName does not split into exactly three
// comma-joined fields.
func (r Record) Target() (db, chrom string, seqType SeqType, err error) {
	parts := strings.Split(r.TName, ",")
	if len(parts) != 3 {
		return "", "", 0, &DataError{Reason: fmt.Sprintf("target name %q does not split into db,chrom,seqType", r.TName)}
	}
	if len(parts[2]) != 1 {
		return "", "", 0, &DataError{Reason: fmt.Sprintf("target name %q has invalid seqType %q", r.TName, parts[2])}
	}
	return parts[0], parts[1], SeqType(parts[2][0]), nil
}

// JoinTarget is the inverse of Target: it builds the triple-joined
// target name from its components.
func JoinTarget(db, chrom string, seqType SeqType) string {
	return db + "," + chrom + "," + string(seqType)
}

// DataError reports a malformed row that a stage should log and skip
// rather than abort on, per the error taxonomy.
type DataError struct {
	Reason string
}

func (e *DataError) Error() string { return "psl: " + e.Reason }

// WriteTo writes r in standard 21-field tabular PSL form.
func (r Record) WriteTo(w io.Writer) (int64, error) {
	fields := []string{
		strconv.Itoa(r.Matches),
		strconv.Itoa(r.MisMatches),
		strconv.Itoa(r.RepMatches),
		strconv.Itoa(r.NCount),
		strconv.Itoa(r.QNumInsert),
		strconv.Itoa(r.QBaseInsert),
		strconv.Itoa(r.TNumInsert),
		strconv.Itoa(r.TBaseInsert),
		r.Strand,
		r.QName,
		strconv.Itoa(r.QSize),
		strconv.Itoa(r.QStart),
		strconv.Itoa(r.QEnd),
		r.TName,
		strconv.Itoa(r.TSize),
		strconv.Itoa(r.TStart),
		strconv.Itoa(r.TEnd),
		strconv.Itoa(r.BlockCount),
		joinInts(r.BlockSizes),
		joinInts(r.QStarts),
		joinInts(r.TStarts),
	}
	line := strings.Join(fields, "\t") + "\n"
	n, err := io.WriteString(w, line)
	return int64(n), err
}

func joinInts(vs []int) string {
	var b strings.Builder
	for _, v := range vs {
		b.WriteString(strconv.Itoa(v))
		b.WriteByte(',')
	}
	return b.String()
}

func splitInts(s string) ([]int, error) {
	s = strings.TrimSuffix(s, ",")
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

const numFields = 21

// ParseRecord parses one tabular PSL line (no header, no track lines).
func ParseRecord(line string) (Record, error) {
	f := strings.Split(strings.TrimRight(line, "\n"), "\t")
	if len(f) != numFields {
		return Record{}, &DataError{Reason: fmt.Sprintf("expected %d fields, got %d: %q", numFields, len(f), line)}
	}
	var r Record
	var err error
	ints := []*int{
		&r.Matches, &r.MisMatches, &r.RepMatches, &r.NCount,
		&r.QNumInsert, &r.QBaseInsert, &r.TNumInsert, &r.TBaseInsert,
	}
	for i, p := range ints {
		*p, err = strconv.Atoi(strings.TrimSpace(f[i]))
		if err != nil {
			return Record{}, &DataError{Reason: fmt.Sprintf("field %d: %v", i, err)}
		}
	}
	r.Strand = f[8]
	r.QName = f[9]
	r.QSize, err = strconv.Atoi(f[10])
	if err != nil {
		return Record{}, &DataError{Reason: fmt.Sprintf("qSize: %v", err)}
	}
	r.QStart, err = strconv.Atoi(f[11])
	if err != nil {
		return Record{}, &DataError{Reason: fmt.Sprintf("qStart: %v", err)}
	}
	r.QEnd, err = strconv.Atoi(f[12])
	if err != nil {
		return Record{}, &DataError{Reason: fmt.Sprintf("qEnd: %v", err)}
	}
	r.TName = f[13]
	r.TSize, err = strconv.Atoi(f[14])
	if err != nil {
		return Record{}, &DataError{Reason: fmt.Sprintf("tSize: %v", err)}
	}
	r.TStart, err = strconv.Atoi(f[15])
	if err != nil {
		return Record{}, &DataError{Reason: fmt.Sprintf("tStart: %v", err)}
	}
	r.TEnd, err = strconv.Atoi(f[16])
	if err != nil {
		return Record{}, &DataError{Reason: fmt.Sprintf("tEnd: %v", err)}
	}
	r.BlockCount, err = strconv.Atoi(f[17])
	if err != nil {
		return Record{}, &DataError{Reason: fmt.Sprintf("blockCount: %v", err)}
	}
	r.BlockSizes, err = splitInts(f[18])
	if err != nil {
		return Record{}, &DataError{Reason: fmt.Sprintf("blockSizes: %v", err)}
	}
	r.QStarts, err = splitInts(f[19])
	if err != nil {
		return Record{}, &DataError{Reason: fmt.Sprintf("qStarts: %v", err)}
	}
	r.TStarts, err = splitInts(f[20])
	if err != nil {
		return Record{}, &DataError{Reason: fmt.Sprintf("tStarts: %v", err)}
	}
	return r, nil
}

// Scanner reads successive PSL records from a tabular file, skipping
// blank lines and PSL header/track banners (lines that don't start
// with a digit). Malformed rows are skipped and do not abort the scan;
// the last one is reported as a *DataError by Err.
type Scanner struct {
	sc   *bufio.Scanner
	rec  Record
	err  error
}

// NewScanner returns a Scanner reading from r.
func NewScanner(r io.Reader) *Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &Scanner{sc: sc}
}

// Scan advances to the next record. It returns false at EOF; callers
// should check Err to distinguish EOF from scanner failure.
func (s *Scanner) Scan() bool {
	for s.sc.Scan() {
		line := s.sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if line[0] < '0' || line[0] > '9' {
			// Header or separator line from a psl file with -header.
			continue
		}
		rec, err := ParseRecord(line)
		if err != nil {
			s.err = err
			continue
		}
		s.rec = rec
		return true
	}
	return false
}

// Record returns the record most recently produced by Scan.
func (s *Scanner) Record() Record { return s.rec }

// Err returns the last DataError encountered, or the scanner's I/O
// error if any. A DataError stays set after later successful Scans.
func (s *Scanner) Err() error {
	if err := s.sc.Err(); err != nil {
		return err
	}
	return s.err
}
