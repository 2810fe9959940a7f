// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sortlift implements the per-db SortLift stage: concatenate
// every alignment output file for a db, sort by target coordinate, and
// lift cDNA/protein-space alignments into genome coordinates using a
// coordinate-mapping psl, producing one sorted, genome-coordinate psl
// per db. Grounded on the teacher's sort-by-target idiom in
// internal/store.BySubjectPosition, reimplemented in-process per Design
// Notes §9 rather than shelling out to an external sort/lift tool.
package sortlift

import (
	"fmt"
	"io"
	"log"
	"sort"

	"github.com/kortschak/pubs/internal/psl"
)

// ReadAll reads every psl record from r, logging and skipping malformed
// rows (the DataError recovery policy) rather than aborting the merge.
func ReadAll(r io.Reader) []psl.Record {
	sc := psl.NewScanner(r)
	var out []psl.Record
	for sc.Scan() {
		out = append(out, sc.Record())
	}
	if err := sc.Err(); err != nil {
		log.Printf("sortlift: %v", err)
	}
	return out
}

// SortByTarget orders records by (target name, target start), the
// coordinate order the loader and genome browser expect.
func SortByTarget(records []psl.Record) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].TName != records[j].TName {
			return records[i].TName < records[j].TName
		}
		return records[i].TStart < records[j].TStart
	})
}

// LiftError reports that a cDNA or protein alignment could not be
// lifted to genome coordinates, typically because no coordinate-mapping
// record exists for its target. SortLift is tolerant of this per
// spec.md §4.6: Process logs it and skips the record, without
// aborting the stage.
type LiftError struct {
	Target string
	Reason string
}

func (e *LiftError) Error() string {
	return fmt.Sprintf("sortlift: cannot lift target %s: %s", e.Target, e.Reason)
}

// Mapping indexes coordinate-mapping psl records (e.g. a cDNA-to-genome
// alignment) by the name of the space being mapped away from, which
// appears as the mapping record's own query name.
type Mapping map[string]psl.Record

// LoadMapping reads a coordinate-mapping psl file, such as one found
// under cdnaDir/<db>/*.psl, indexing it by query name.
func LoadMapping(r io.Reader) Mapping {
	m := make(Mapping)
	for _, rec := range ReadAll(r) {
		m[rec.QName] = rec
	}
	return m
}

// Lift rewrites r's target coordinates from cDNA/protein space into
// genome space using m. Genome-space records pass through unchanged.
// If no mapping entry covers r's target, a *LiftError is returned and
// the caller should skip the record (log and continue), not abort.
func (m Mapping) Lift(r psl.Record) (psl.Record, error) {
	db, chrom, seqType, err := r.Target()
	if err != nil {
		return r, err
	}
	if seqType == psl.Genome {
		return r, nil
	}
	mapping, ok := m[chrom]
	if !ok {
		return psl.Record{}, &LiftError{Target: r.TName, Reason: "no coordinate mapping for " + chrom}
	}

	gStart, gEnd, ok := mapRange(mapping, r.TStart, r.TEnd)
	if !ok {
		return psl.Record{}, &LiftError{Target: r.TName, Reason: "target range not covered by mapping"}
	}
	lifted := r
	lifted.TName = psl.JoinTarget(db, mapping.TName, seqType)
	lifted.TSize = mapping.TSize
	lifted.TStart = gStart
	lifted.TEnd = gEnd
	lifted.TStarts = make([]int, len(r.TStarts))
	for i, bs := range r.TStarts {
		size := bs + r.BlockSizes[i]
		gs, _, ok := mapRange(mapping, bs, size)
		if !ok {
			gs = gStart
		}
		lifted.TStarts[i] = gs
	}
	return lifted, nil
}

// mapRange maps a half-open interval in m's query space to m's target
// space, following m's block structure the way the standard aligner
// table's coordinate-lift tool does. ok is false if no block of m
// overlaps [start,end).
func mapRange(m psl.Record, start, end int) (gStart, gEnd int, ok bool) {
	for i, qs := range m.QStarts {
		size := m.BlockSizes[i]
		qe := qs + size
		if end <= qs || start >= qe {
			continue
		}
		ts := m.TStarts[i]
		lo := start - qs
		if lo < 0 {
			lo = 0
		}
		hi := end - qs
		if hi > size {
			hi = size
		}
		if !ok {
			gStart = ts + lo
		}
		gEnd = ts + hi
		ok = true
	}
	return gStart, gEnd, ok
}

// Process runs the full per-db SortLift pipeline: concatenate raw,
// sort by target, lift non-genome records through mapping (nil mapping
// leaves cDNA/protein records as-is, e.g. when no coordinate file
// exists for the db, per the tolerant-missing-file rule), and return
// the final sorted genome-coordinate records.
func Process(raw []psl.Record, mapping Mapping) []psl.Record {
	out := make([]psl.Record, 0, len(raw))
	for _, r := range raw {
		if mapping == nil {
			out = append(out, r)
			continue
		}
		lifted, err := mapping.Lift(r)
		if err != nil {
			log.Printf("sortlift: %v", err)
			continue
		}
		out = append(out, lifted)
	}
	SortByTarget(out)
	return out
}

// WriteAll writes records as tabular psl to w.
func WriteAll(w io.Writer, records []psl.Record) error {
	for _, r := range records {
		if _, err := r.WriteTo(w); err != nil {
			return err
		}
	}
	return nil
}
