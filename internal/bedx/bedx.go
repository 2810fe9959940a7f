// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bedx implements the extended BED ("bedx") feature record that
// the chain engine and table builder emit: a standard 12-column BED
// block structure plus a trailing annotId and marker-name column.
package bedx

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/biogo/biogo/seq"
)

// Feature is one chained alignment rendered as an extended BED record.
type Feature struct {
	Chrom      string
	Start      int
	End        int
	Name       string
	Score      int
	Strand     seq.Strand
	ThickStart int
	ThickEnd   int
	ItemRGB    string
	BlockSizes []int
	BlockStarts []int

	// AnnotID is the composite annotation identifier (internal/annotid)
	// this feature traces back to.
	AnnotID uint64

	// MarkerNames holds zero or more gene/marker names joined onto this
	// feature by internal/table's locus overlap join.
	MarkerNames []string
}

// Strand values mirror the teacher's blast.Record.Strand convention
// (cmd/ins/main.go: seq.Strand(r.Strand)): positive for the forward
// strand, negative for reverse, zero for unstranded.
func strandSymbol(s seq.Strand) string {
	switch {
	case s > 0:
		return "+"
	case s < 0:
		return "-"
	default:
		return "."
	}
}

// WriteTo writes f as one tab-separated bedx line.
func (f Feature) WriteTo(w io.Writer) (int64, error) {
	blockCount := len(f.BlockSizes)
	line := fmt.Sprintf("%s\t%d\t%d\t%s\t%d\t%s\t%d\t%d\t%s\t%d\t%s\t%s\t%d\t%s\n",
		f.Chrom, f.Start, f.End, f.Name, f.Score, strandSymbol(f.Strand),
		f.ThickStart, f.ThickEnd, f.ItemRGB, blockCount,
		joinInts(f.BlockSizes), joinInts(f.BlockStarts),
		f.AnnotID, strings.Join(f.MarkerNames, ","))
	n, err := io.WriteString(w, line)
	return int64(n), err
}

func joinInts(vs []int) string {
	var b strings.Builder
	for i, v := range vs {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(v))
	}
	b.WriteByte(',')
	return b.String()
}

// SortByPosition sorts features in place by (chrom, start, end), the
// order required before writing a bed file a genome browser or the
// loader can consume.
func SortByPosition(fs []Feature) {
	sort.Slice(fs, func(i, j int) bool {
		if fs[i].Chrom != fs[j].Chrom {
			return fs[i].Chrom < fs[j].Chrom
		}
		if fs[i].Start != fs[j].Start {
			return fs[i].Start < fs[j].Start
		}
		return fs[i].End < fs[j].End
	})
}

// Overlaps reports whether f and g share any base on the same chrom.
func (f Feature) Overlaps(g Feature) bool {
	return f.Chrom == g.Chrom && f.Start < g.End && g.Start < f.End
}
