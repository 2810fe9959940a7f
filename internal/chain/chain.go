// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package chain implements the algorithmic core of the pipeline: the
// global near-best alignment filter, the re-split of alignments by
// article chunk, per-(db,chromosome) chaining, longest-first chain
// balancing, bitmask-based block-structure construction and psl
// seqType fusion. Chaining is a linear scan over target-sorted
// alignments; no interval tree is involved.
package chain

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"modernc.org/kv"

	"github.com/kortschak/pubs/internal/annotid"
	"github.com/kortschak/pubs/internal/bedx"
	"github.com/kortschak/pubs/internal/psl"
	"github.com/kortschak/pubs/internal/store"
)

// StagingIndex is a disk-resident, target-position-ordered staging
// store for one db's alignment records, so the chain engine does not
// need to hold every record for a large db's chunk in memory at once
// while it waits for the rest of its group to land. It reuses the
// modernc.org/kv key codec internal/store defines, the same
// disk-backed-map idiom internal/seqfilter's Dedup uses.
type StagingIndex struct {
	db *kv.DB
}

// NewStagingIndex creates (or truncates) a staging store at path,
// ordered by target position.
func NewStagingIndex(path string) (*StagingIndex, error) {
	db, err := kv.Create(path, &kv.Options{Compare: store.ByTargetPosition})
	if err != nil {
		return nil, err
	}
	return &StagingIndex{db: db}, nil
}

// Close closes the underlying store.
func (s *StagingIndex) Close() error { return s.db.Close() }

// Put stages r, keyed by its target position.
func (s *StagingIndex) Put(r psl.Record) error {
	var buf strings.Builder
	if _, err := r.WriteTo(&buf); err != nil {
		return err
	}
	return s.db.Set(store.MarshalPSLKey(r), []byte(buf.String()))
}

// All drains every staged record back out in target-position order.
func (s *StagingIndex) All() ([]psl.Record, error) {
	it, err := s.db.SeekFirst()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, err
	}
	var out []psl.Record
	for {
		_, v, err := it.Next()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		r, err := psl.ParseRecord(strings.TrimRight(string(v), "\n"))
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// alignmentSize is the measure the near-best filter uses to discard
// short alignments before ranking, following the standard aligner
// table's matches+mismatches+repMatches convention for "aligned bases".
func alignmentSize(r psl.Record) int {
	return r.Matches + r.MisMatches + r.RepMatches
}

// NearBestFilter keeps, per query name, only the alignments tied for
// the best match count, discarding any alignment smaller than minSize
// aligned bases. This is the "global merge + near-best filter" of
// spec.md §4.7(a), with "global near-best 0" meaning no slack is
// allowed below the best score.
func NearBestFilter(records []psl.Record, minSize int) []psl.Record {
	byQuery := make(map[string][]psl.Record)
	for _, r := range records {
		if alignmentSize(r) < minSize {
			continue
		}
		byQuery[r.QName] = append(byQuery[r.QName], r)
	}
	var out []psl.Record
	for _, rs := range byQuery {
		best := 0
		for _, r := range rs {
			if r.Matches > best {
				best = r.Matches
			}
		}
		for _, r := range rs {
			if r.Matches == best {
				out = append(out, r)
			}
		}
	}
	return out
}

// ChunkAssigner resolves the deterministic chunk assignment recorded by
// the text layer for an article, falling back to the division rule
// spec.md §4.7(b) names when no mapping is recorded.
type ChunkAssigner struct {
	Lookup            map[uint64]int
	ChunkArticleCount int
}

// ChunkFor returns the chunk id for articleID.
func (c ChunkAssigner) ChunkFor(articleID uint64) int {
	if c.Lookup != nil {
		if id, ok := c.Lookup[articleID]; ok {
			return id
		}
	}
	if c.ChunkArticleCount <= 0 {
		return 0
	}
	return int(articleID) / c.ChunkArticleCount
}

// SplitByChunk groups records by the chunk their article maps to,
// dropping every record belonging to an article whose total alignment
// count reaches maxDbMatchCount (a repetitive, uninformative match
// flood). Per spec.md §9 Open Questions, the per-article counter used
// for this decision is incremented exactly once per record, fixing the
// source's double-increment.
func SplitByChunk(records []psl.Record, digits annotid.Digits, assigner ChunkAssigner, maxDbMatchCount int) map[int][]psl.Record {
	counts := make(map[uint64]int)
	for _, r := range records {
		qn, err := parseQName(r.QName)
		if err != nil {
			continue
		}
		article := digits.ArticleID(qn)
		counts[article]++
	}

	out := make(map[int][]psl.Record)
	for _, r := range records {
		qn, err := parseQName(r.QName)
		if err != nil {
			continue
		}
		article := digits.ArticleID(qn)
		if maxDbMatchCount > 0 && counts[article] >= maxDbMatchCount {
			continue
		}
		chunk := assigner.ChunkFor(article)
		out[chunk] = append(out[chunk], r)
	}
	return out
}

func parseQName(s string) (uint64, error) {
	var n uint64
	_, err := fmt.Sscanf(s, "%d", &n)
	if err != nil {
		return 0, fmt.Errorf("chain: query name %q is not a numeric annotId: %w", s, err)
	}
	return n, nil
}

// Chain is one ordered set of alignments on the same (db, chrom) for
// the same article, each query name appearing at most once except when
// merged across seqType (spec.md §3).
type Chain struct {
	ID        string
	DB        string
	Chrom     string
	ArticleID uint64
	// Members maps query name to the alignment(s) backing it; more
	// than one member per query name only occurs when the coordinates
	// are identical and the seqType differs (a multi-seqType hit).
	Members map[string][]psl.Record
}

func (c *Chain) queryNames() []string {
	names := make([]string, 0, len(c.Members))
	for q := range c.Members {
		names = append(names, q)
	}
	sort.Strings(names)
	return names
}

func (c *Chain) lastEnd() int {
	end := 0
	for _, ms := range c.Members {
		for _, m := range ms {
			if m.TEnd > end {
				end = m.TEnd
			}
		}
	}
	return end
}

func sameCoords(a, b psl.Record) bool {
	if a.TStart != b.TStart || a.TEnd != b.TEnd || len(a.BlockSizes) != len(b.BlockSizes) {
		return false
	}
	for i := range a.BlockSizes {
		if a.BlockSizes[i] != b.BlockSizes[i] {
			return false
		}
	}
	return true
}

// ChainChunk performs steps 1-3 of spec.md §4.7(c) for one chunk's
// worth of alignments: group by article, index by (db,chrom) excluding
// haplotype contigs ("_hap"), then chain within each (db,chrom) group
// by walking target-sorted alignments and splitting the chain whenever
// the gap to the next alignment exceeds maxDist.
func ChainChunk(records []psl.Record, digits annotid.Digits, maxDist map[string]int) ([]Chain, error) {
	type key struct {
		article uint64
		db      string
		chrom   string
	}
	groups := make(map[key][]psl.Record)
	for _, r := range records {
		db, chrom, _, err := r.Target()
		if err != nil {
			continue // DataError: skip the row, do not abort the stage.
		}
		if strings.Contains(chrom, "_hap") {
			continue
		}
		qn, err := parseQName(r.QName)
		if err != nil {
			continue
		}
		article := digits.ArticleID(qn)
		k := key{article, db, chrom}
		groups[k] = append(groups[k], r)
	}

	// Deterministic iteration order so chain ids/suffixes are stable.
	keys := make([]key, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].article != keys[j].article {
			return keys[i].article < keys[j].article
		}
		if keys[i].db != keys[j].db {
			return keys[i].db < keys[j].db
		}
		return keys[i].chrom < keys[j].chrom
	})

	seenID := make(map[string]int) // collision counter, Open Question #1
	var chains []Chain
	for _, k := range keys {
		rs := groups[k]
		sort.Slice(rs, func(i, j int) bool { return rs[i].TStart < rs[j].TStart })

		dist, ok := maxDist[k.db]
		if !ok {
			dist = maxDist["default"]
		}

		var cur *Chain
		alreadyChained := make(map[string]psl.Record)
		closeChain := func() {
			if cur == nil || len(cur.Members) == 0 {
				return
			}
			chains = append(chains, *cur)
			cur = nil
			alreadyChained = make(map[string]psl.Record)
		}
		for _, r := range rs {
			if prev, ok := alreadyChained[r.QName]; ok {
				_, _, st, _ := r.Target()
				newType := true
				for _, m := range cur.Members[r.QName] {
					if _, _, mst, _ := m.Target(); mst == st {
						newType = false
					}
				}
				if newType && sameCoords(prev, r) {
					cur.Members[r.QName] = append(cur.Members[r.QName], r)
				}
				continue // duplicate within chain, not a multi-seqType hit
			}
			if cur != nil && abs(r.TStart-cur.lastEnd()) > dist {
				closeChain()
			}
			if cur == nil {
				base := fmt.Sprintf("%s,%s-%d", k.db, k.chrom, r.TStart)
				id := base
				if n := seenID[base]; n > 0 {
					id = fmt.Sprintf("%s-%d", base, n)
				}
				seenID[base]++
				cur = &Chain{ID: id, DB: k.db, Chrom: k.chrom, ArticleID: k.article, Members: make(map[string][]psl.Record)}
			}
			cur.Members[r.QName] = append(cur.Members[r.QName], r)
			alreadyChained[r.QName] = r
		}
		closeChain()
	}
	return chains, nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// Balance performs the longest-first chain selection of spec.md
// §4.7(c)(4): repeatedly take every chain whose surviving query-name
// set is currently maximal, remove those names from every other chain,
// drop chains left with no names, and repeat.
func Balance(chains []Chain) []Chain {
	// Work on a mutable copy so members can be pruned as qNames are
	// claimed by a kept chain.
	remaining := make([]*Chain, len(chains))
	for i := range chains {
		c := chains[i]
		remaining[i] = &c
	}

	var kept []Chain
	for {
		var maxLen int
		for _, c := range remaining {
			if c == nil {
				continue
			}
			if n := len(c.Members); n > maxLen {
				maxLen = n
			}
		}
		if maxLen == 0 {
			break
		}

		var claimed []string
		for i, c := range remaining {
			if c == nil || len(c.Members) != maxLen {
				continue
			}
			kept = append(kept, *c)
			for q := range c.Members {
				claimed = append(claimed, q)
			}
			remaining[i] = nil
		}

		for _, c := range remaining {
			if c == nil {
				continue
			}
			for _, q := range claimed {
				delete(c.Members, q)
			}
		}
	}
	return kept
}

// Feature materializes the BED block structure and fused PSL rows for
// one chain, per spec.md §4.7(c)(5,7). ok is false if the resulting
// feature does not meet minChainCoverage or exceeds maxChainLength.
func Feature(c Chain, digits annotid.Digits, minCoverage, maxLength int) (f bedx.Feature, fused []psl.Record, ok bool) {
	minStart, maxEnd := -1, 0
	var all []psl.Record
	for _, ms := range c.Members {
		for _, m := range ms {
			all = append(all, m)
			if minStart == -1 || m.TStart < minStart {
				minStart = m.TStart
			}
			if m.TEnd > maxEnd {
				maxEnd = m.TEnd
			}
		}
	}
	if len(all) == 0 || minStart == -1 || maxEnd <= minStart {
		return bedx.Feature{}, nil, false
	}

	length := maxEnd - minStart
	mask := make([]bool, length)
	for _, m := range all {
		starts := m.TStarts
		sizes := m.BlockSizes
		if len(starts) == 0 {
			// No block structure recorded: treat the whole aligned
			// span as one block.
			starts = []int{m.TStart}
			sizes = []int{m.TEnd - m.TStart}
		}
		for i, size := range sizes {
			off := starts[i] - minStart
			for j := 0; j < size; j++ {
				if off+j >= 0 && off+j < length {
					mask[off+j] = true
				}
			}
		}
	}

	var blockStarts, blockSizes []int
	covered := 0
	i := 0
	for i < length {
		if !mask[i] {
			i++
			continue
		}
		start := i
		for i < length && mask[i] {
			covered++
			i++
		}
		blockStarts = append(blockStarts, start)
		blockSizes = append(blockSizes, i-start)
	}
	if covered < minCoverage {
		return bedx.Feature{}, nil, false
	}
	if length > maxLength {
		return bedx.Feature{}, nil, false
	}

	var seqIDs []string
	seqTypeSet := make(map[psl.SeqType]bool)
	fused = fuseBySeqType(all)
	for _, r := range fused {
		_, _, st, err := r.Target()
		if err == nil {
			seqTypeSet[st] = true
		}
		seqIDs = append(seqIDs, r.QName)
	}
	sort.Strings(seqIDs)

	f = bedx.Feature{
		Chrom:       c.Chrom,
		Start:       minStart,
		End:         maxEnd,
		Name:        fmt.Sprintf("%d", c.ArticleID),
		Score:       covered,
		BlockSizes:  blockSizes,
		BlockStarts: blockStarts,
		AnnotID:     digits.Compose(c.ArticleID, 0, 0),
	}
	return f, fused, true
}

// fuseBySeqType collapses records of one query that share identical
// (tStart, tEnd, blockSizes) but differ in seqType into one row: the
// first such record, unchanged. The seqTypes of the other collapsed
// records are not written to the output row; psl.Record has no
// seqTypes column.
func fuseBySeqType(records []psl.Record) []psl.Record {
	type bucket struct {
		rec      psl.Record
		seqTypes map[psl.SeqType]bool
	}
	var buckets []*bucket
outer:
	for _, r := range records {
		for _, b := range buckets {
			if sameCoords(b.rec, r) && b.rec.QName == r.QName {
				_, _, st, err := r.Target()
				if err == nil {
					b.seqTypes[st] = true
				}
				continue outer
			}
		}
		st := make(map[psl.SeqType]bool)
		if _, _, s, err := r.Target(); err == nil {
			st[s] = true
		}
		buckets = append(buckets, &bucket{rec: r, seqTypes: st})
	}
	out := make([]psl.Record, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, b.rec)
	}
	return out
}

// ApplyFeatureCap drops every feature belonging to an article whose
// feature count on a single db exceeds maxFeatures, per spec.md
// §4.7(c)(6): the whole article is discarded on that db, not merely
// trimmed to the cap.
func ApplyFeatureCap(byDBArticle map[string]map[uint64][]bedx.Feature, maxFeatures int) {
	for db, byArticle := range byDBArticle {
		for article, fs := range byArticle {
			if len(fs) > maxFeatures {
				delete(byArticle, article)
			}
		}
		byDBArticle[db] = byArticle
	}
}
