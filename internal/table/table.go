// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package table implements the TableBuilder stage: it enriches
// chain-engine bed features with article metadata, impact factors,
// classes and locus overlap, rewrites marker annotations into sorted
// per-db tables with aggregated article counts, and produces the
// sequence/article tables the loader ingests. Locus overlap is
// grounded on the teacher's cmd/cull/main.go interval.IntTree usage,
// repurposed from "discard contained features" to "report overlapping
// feature names".
package table

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/biogo/store/interval"

	"github.com/kortschak/pubs/internal/annotation"
	"github.com/kortschak/pubs/internal/annotid"
	"github.com/kortschak/pubs/internal/bedx"
	"github.com/kortschak/pubs/internal/psl"
)

// ArticleMeta is the per-article metadata joined onto every bed
// feature and marker row that article produces.
type ArticleMeta struct {
	ArticleID   uint64
	Publisher   string
	PMID        string
	DOI         string
	PrintISSN   string
	Journal     string
	Title       string
	FirstAuthor string
	Year        int
}

// ExtFeature is a bedx.Feature enriched with the extended columns
// spec.md §6 defines for the loadable bed table: seqTypes, seqIds,
// seqRanges, then the article metadata, impact and locus columns.
type ExtFeature struct {
	bedx.Feature

	SeqTypes  string
	SeqIDs    []string
	SeqRanges []string

	Meta   ArticleMeta
	Impact int
	Classes []string
	Loci    []string
}

// WriteTo writes f as one tab-separated bedx line: the 14 columns
// bedx.Feature writes (12-column BED, annotId, markerNames) followed by
// the extension columns of spec.md §6.
func (f ExtFeature) WriteTo(w io.Writer) (int64, error) {
	var buf strings.Builder
	var bb strings.Builder
	f.Feature.WriteTo(&bb)
	buf.WriteString(strings.TrimSuffix(bb.String(), "\n"))
	buf.WriteByte('\t')
	buf.WriteString(f.SeqTypes)
	buf.WriteByte('\t')
	buf.WriteString(strings.Join(f.SeqIDs, ","))
	buf.WriteByte('\t')
	buf.WriteString(strings.Join(f.SeqRanges, ","))
	buf.WriteByte('\t')
	fmt.Fprintf(&buf, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
		f.Meta.Publisher, f.Meta.PMID, f.Meta.DOI, f.Meta.PrintISSN,
		f.Meta.Journal, f.Meta.Title, f.Meta.FirstAuthor, f.Meta.Year,
		f.Impact, strings.Join(f.Classes, ","), strings.Join(f.Loci, ","))
	n, err := io.WriteString(w, buf.String())
	return int64(n), err
}

// ChainRecord holds the fused psl rows backing one chain feature,
// needed to derive SeqTypes/SeqIDs/SeqRanges.
type ChainRecord struct {
	feature bedx.Feature
	fused   []psl.Record
}

// NewChainRecord pairs a materialized bed feature with the fused psl
// rows chain.Feature returned alongside it.
func NewChainRecord(f bedx.Feature, fused []psl.Record) ChainRecord {
	return ChainRecord{feature: f, fused: fused}
}

// Enrich joins article metadata, per-issn impact factors, per-article
// classes and locus overlap onto a set of chain-engine features,
// producing the loadable ExtFeature rows.
func Enrich(chains []ChainRecord, articles map[uint64]ArticleMeta, impactByISSN map[string]int, classesByArticle map[uint64][]string, loci LocusIndex) []ExtFeature {
	out := make([]ExtFeature, 0, len(chains))
	for _, c := range chains {
		var seqTypes strings.Builder
		seenType := make(map[byte]bool)
		var ids, ranges []string
		for _, r := range c.fused {
			_, _, st, err := r.Target()
			if err == nil && !seenType[byte(st)] {
				seenType[byte(st)] = true
				seqTypes.WriteByte(byte(st))
			}
			ids = append(ids, r.QName)
			ranges = append(ranges, fmt.Sprintf("%d-%d", r.TStart, r.TEnd))
		}

		// chain.Feature names each feature by its article id.
		articleID, _ := strconv.ParseUint(c.feature.Name, 10, 64)
		meta := articles[articleID]
		ef := ExtFeature{
			Feature:   c.feature,
			SeqTypes:  seqTypes.String(),
			SeqIDs:    ids,
			SeqRanges: ranges,
			Meta:      meta,
			Impact:    impactByISSN[meta.PrintISSN],
			Classes:   classesByArticle[meta.ArticleID],
		}
		if loci.tree != nil {
			ef.Loci = loci.Overlapping(c.feature.Chrom, c.feature.Start, c.feature.End)
		}
		out = append(out, ef)
	}
	return out
}


// LocusIndex answers overlap queries against a per-db loci bed
// (lociDir/<db>.bed in spec.md's filesystem layout).
type LocusIndex struct {
	tree map[string]*interval.IntTree
}

type locusInterval struct {
	uid        uintptr
	start, end int
	name       string
}

func (l locusInterval) Overlap(b interval.IntRange) bool { return b.Start < l.end && l.start < b.End }
func (l locusInterval) ID() uintptr                      { return l.uid }
func (l locusInterval) Range() interval.IntRange {
	return interval.IntRange{Start: l.start, End: l.end}
}

// LociRecord is one row of a lociDir/<db>.bed file: a named gene
// interval to overlap chain features against.
type LociRecord struct {
	Chrom string
	Start int
	End   int
	Name  string
}

// BuildLocusIndex indexes loci by chromosome for overlap queries.
func BuildLocusIndex(loci []LociRecord) (LocusIndex, error) {
	byChrom := make(map[string][]LociRecord)
	for _, l := range loci {
		byChrom[l.Chrom] = append(byChrom[l.Chrom], l)
	}
	idx := LocusIndex{tree: make(map[string]*interval.IntTree)}
	var uid uintptr
	for chrom, ls := range byChrom {
		tree := &interval.IntTree{}
		for _, l := range ls {
			uid++
			if err := tree.Insert(locusInterval{uid: uid, start: l.Start, end: l.End, name: l.Name}, true); err != nil {
				return LocusIndex{}, err
			}
		}
		tree.AdjustRanges()
		idx.tree[chrom] = tree
	}
	return idx, nil
}

// Overlapping returns the sorted, deduplicated set of locus names
// overlapping [start,end) on chrom.
func (idx LocusIndex) Overlapping(chrom string, start, end int) []string {
	tree, ok := idx.tree[chrom]
	if !ok {
		return nil
	}
	hits := tree.Get(locusInterval{start: start, end: end})
	seen := make(map[string]bool)
	var names []string
	for _, h := range hits {
		name := h.(locusInterval).name
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// MarkerCount is one row of markerCounts.tab: a marker and the number
// of distinct articles it was found in.
type MarkerCount struct {
	MarkerID string
	Articles int
}

// RewriteMarkers groups marker annotations by marker id, counting
// distinct articles per marker (spec.md §4.8), and returns the
// annotations re-sorted for <db>.markerAnnot.tab plus the aggregated
// counts for markerCounts.tab.
func RewriteMarkers(markers []annotation.MarkerAnnotation, digits annotid.Digits) (sorted []annotation.MarkerAnnotation, counts []MarkerCount) {
	articlesByMarker := make(map[string]map[uint64]bool)
	for _, m := range markers {
		article := digits.ArticleID(m.AnnotID)
		set, ok := articlesByMarker[m.MarkerID]
		if !ok {
			set = make(map[uint64]bool)
			articlesByMarker[m.MarkerID] = set
		}
		set[article] = true
	}

	for marker, set := range articlesByMarker {
		counts = append(counts, MarkerCount{MarkerID: marker, Articles: len(set)})
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].MarkerID < counts[j].MarkerID })

	sorted = append(sorted, markers...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].MarkerID != sorted[j].MarkerID {
			return sorted[i].MarkerID < sorted[j].MarkerID
		}
		return sorted[i].AnnotID < sorted[j].AnnotID
	})
	return sorted, counts
}

// WriteMarkerCounts writes counts as a sorted tab file.
func WriteMarkerCounts(w io.Writer, counts []MarkerCount) error {
	for _, c := range counts {
		if _, err := fmt.Fprintf(w, "%s\t%d\n", c.MarkerID, c.Articles); err != nil {
			return err
		}
	}
	return nil
}

// SanitizeYear coerces a possibly-malformed article year into a
// non-negative integer, per spec.md §4.8. A year that does not parse
// or is negative becomes 0.
func SanitizeYear(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// SanitizePMID coerces an empty pmid into 0, per spec.md §4.8.
func SanitizePMID(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// FirstAuthor returns the first semicolon- or comma-joined author in
// an author list string, the convention the teacher's firstAuthor
// helper follows for a joined author field.
func FirstAuthor(authors string) string {
	authors = strings.TrimSpace(authors)
	if authors == "" {
		return ""
	}
	for _, sep := range []string{";", ","} {
		if i := strings.Index(authors, sep); i >= 0 {
			return strings.TrimSpace(authors[:i])
		}
	}
	return authors
}

// ArticleTableRow is one row of hgFixed.article.tab.
type ArticleTableRow struct {
	ArticleID uint64
	Meta      ArticleMeta
}

// BuildArticleTable keeps only articles with at least one db mapping
// or one marker hit (spec.md §4.8), sanitizing year and pmid.
func BuildArticleTable(articles map[uint64]ArticleMeta, haveMapping, haveMarker map[uint64]bool) []ArticleTableRow {
	var out []ArticleTableRow
	for id, meta := range articles {
		if !haveMapping[id] && !haveMarker[id] {
			continue
		}
		meta.Year = SanitizeYear(strconv.Itoa(meta.Year))
		out = append(out, ArticleTableRow{ArticleID: id, Meta: meta})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ArticleID < out[j].ArticleID })
	return out
}

// WriteArticleTable writes rows as hgFixed.article.tab.
func WriteArticleTable(w io.Writer, rows []ArticleTableRow) error {
	for _, r := range rows {
		pmid := SanitizePMID(r.Meta.PMID)
		_, err := fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\t%s\t%s\t%s\t%d\n",
			r.ArticleID, r.Meta.Publisher, pmid, r.Meta.DOI, r.Meta.PrintISSN,
			r.Meta.Journal, r.Meta.Title, FirstAuthor(r.Meta.FirstAuthor), r.Meta.Year)
		if err != nil {
			return err
		}
	}
	return nil
}

// SeqAnnotRow is one row of hgFixed.sequenceAnnot.tab: one per
// (annotId, articleId) pair, carrying file description, URL, snippet
// and the concatenated chain coordinate strings that annotation maps
// to.
type SeqAnnotRow struct {
	AnnotID     uint64
	ArticleID   uint64
	FileDesc    string
	URL         string
	Snippet     string
	ChainCoords []string
}

// WriteSeqAnnotTable writes rows as hgFixed.sequenceAnnot.tab.
func WriteSeqAnnotTable(w io.Writer, rows []SeqAnnotRow) error {
	for _, r := range rows {
		_, err := fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%s\n",
			r.AnnotID, r.ArticleID, r.FileDesc, r.URL, r.Snippet, strings.Join(r.ChainCoords, ","))
		if err != nil {
			return err
		}
	}
	return nil
}

// SortBedFiles sorts every feature slice in files by (chrom, start),
// matching spec.md §4.8's "sorts all BED files in the table directory".
func SortBedFiles(files map[string][]ExtFeature) {
	for _, fs := range files {
		sort.Slice(fs, func(i, j int) bool {
			if fs[i].Chrom != fs[j].Chrom {
				return fs[i].Chrom < fs[j].Chrom
			}
			return fs[i].Start < fs[j].Start
		})
	}
}
