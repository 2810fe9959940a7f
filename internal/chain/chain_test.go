// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package chain

import (
	"testing"

	"github.com/kortschak/pubs/internal/annotid"
	"github.com/kortschak/pubs/internal/bedx"
	"github.com/kortschak/pubs/internal/psl"
)

var digits = annotid.Digits{Article: 10, File: 3, Annot: 5}

func rec(qName string, tStart, tEnd int, target string) psl.Record {
	size := tEnd - tStart
	return psl.Record{
		Matches:    size,
		QName:      qName,
		QSize:      size,
		QEnd:       size,
		TName:      target,
		TStart:     tStart,
		TEnd:       tEnd,
		BlockCount: 1,
		BlockSizes: []int{size},
		QStarts:    []int{0},
		TStarts:    []int{tStart},
	}
}

func qname(article uint64) string {
	return itoa(digits.Compose(article, 0, 0))
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// TestChainSingleContig is spec.md §8 scenario S2: A and B chain
// together (within maxDist), C is far enough away to start its own
// chain; balancing keeps both, the two-member chain first. All three
// alignments belong to article 1, since chains never span articles.
func TestChainSingleContig(t *testing.T) {
	target := psl.JoinTarget("hg19", "chr1", psl.Genome)
	a := rec(itoa(digits.Compose(1, 0, 1)), 1000, 1050, target)
	b := rec(itoa(digits.Compose(1, 0, 2)), 1080, 1130, target)
	c := rec(itoa(digits.Compose(1, 0, 3)), 5000, 5050, target)

	chains, err := ChainChunk([]psl.Record{a, b, c}, digits, map[string]int{"default": 2000})
	if err != nil {
		t.Fatal(err)
	}
	if len(chains) != 2 {
		t.Fatalf("got %d chains, want 2", len(chains))
	}

	kept := Balance(chains)
	if len(kept) != 2 {
		t.Fatalf("got %d chains after balancing, want 2", len(kept))
	}
	if len(kept[0].Members) != 2 {
		t.Fatalf("kept chain has %d members, want 2 ({A,B})", len(kept[0].Members))
	}
}

// TestDuplicateSeqTypeMerge is spec.md §8 scenario S3: two alignments
// with identical coordinates but different seqType for the same query
// are both retained in the chain and fuse into one psl row.
func TestDuplicateSeqTypeMerge(t *testing.T) {
	q := qname(1)
	g := rec(q, 1000, 1050, psl.JoinTarget("hg19", "chr1", psl.Genome))
	cdna := rec(q, 1000, 1050, psl.JoinTarget("hg19", "chr1", psl.CDNA))

	chains, err := ChainChunk([]psl.Record{g, cdna}, digits, map[string]int{"default": 2000})
	if err != nil {
		t.Fatal(err)
	}
	if len(chains) != 1 {
		t.Fatalf("got %d chains, want 1", len(chains))
	}
	if len(chains[0].Members[q]) != 2 {
		t.Fatalf("got %d members for query, want 2 (both seqTypes retained)", len(chains[0].Members[q]))
	}

	_, fused, ok := Feature(chains[0], digits, 1, 1000000)
	if !ok {
		t.Fatal("Feature rejected the chain")
	}
	if len(fused) != 1 {
		t.Fatalf("got %d fused psl rows, want 1", len(fused))
	}
}

// TestBlockUnion is spec.md §8 scenario S4: two overlapping alignments
// union into a single contiguous block.
func TestBlockUnion(t *testing.T) {
	target := psl.JoinTarget("hg19", "chr1", psl.Genome)
	a := rec(itoa(digits.Compose(1, 0, 1)), 1000, 1020, target)
	b := rec(itoa(digits.Compose(1, 0, 2)), 1010, 1030, target)

	chains, err := ChainChunk([]psl.Record{a, b}, digits, map[string]int{"default": 2000})
	if err != nil {
		t.Fatal(err)
	}
	if len(chains) != 1 {
		t.Fatalf("got %d chains, want 1", len(chains))
	}

	f, _, ok := Feature(chains[0], digits, 1, 1000000)
	if !ok {
		t.Fatal("Feature rejected the chain")
	}
	if f.Start != 1000 || f.End != 1030 {
		t.Fatalf("got start,end = %d,%d want 1000,1030", f.Start, f.End)
	}
	if len(f.BlockSizes) != 1 || f.BlockSizes[0] != 30 {
		t.Fatalf("got blockSizes %v, want [30]", f.BlockSizes)
	}
	if len(f.BlockStarts) != 1 || f.BlockStarts[0] != 0 {
		t.Fatalf("got blockStarts %v, want [0]", f.BlockStarts)
	}
}

// TestFeatureCap is spec.md §8 scenario S5: an article that produces
// more chains than maxFeatures on one db is dropped entirely on that
// db.
func TestFeatureCap(t *testing.T) {
	byDBArticle := map[string]map[uint64][]bedx.Feature{
		"hg19": {
			1: {{Start: 0, End: 20}, {Start: 100, End: 120}, {Start: 200, End: 220}},
			2: {{Start: 0, End: 20}},
		},
	}
	ApplyFeatureCap(byDBArticle, 2)
	if _, ok := byDBArticle["hg19"][1]; ok {
		t.Fatal("article 1 has 3 chains > maxFeatures=2 and should have been dropped entirely")
	}
	if _, ok := byDBArticle["hg19"][2]; !ok {
		t.Fatal("article 2 has 1 chain <= maxFeatures=2 and should survive")
	}
}
