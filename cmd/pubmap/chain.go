// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"path/filepath"

	"github.com/kortschak/pubs/internal/align"
	"github.com/kortschak/pubs/internal/annotid"
	"github.com/kortschak/pubs/internal/bedx"
	"github.com/kortschak/pubs/internal/chain"
	"github.com/kortschak/pubs/internal/pathmodel"
	"github.com/kortschak/pubs/internal/psl"
)

// minAlignSize is the near-best filter's minimum aligned-base
// threshold, spec.md §4.7(a)'s "minimum alignment size 19".
const minAlignSize = 19

// chainHit pairs one chain's materialized feature with its fused psl
// rows, before the per-db feature cap is applied.
type chainHit struct {
	db      string
	article uint64
	feature bedx.Feature
	fused   []psl.Record
}

// runChain drives the chain engine (spec.md §4.7) over every db's
// sorted alignment output, producing one bed/psl file pair per db
// under the batch's bed directory.
func runChain(pc *pipelineContext) error {
	b, err := pc.currentBatch()
	if err != nil {
		return err
	}
	pm := pc.pathModel(b)
	digits := pc.digits()

	dbs, err := sortedDBs(pm)
	if err != nil {
		return err
	}

	byDBArticle := make(map[string]map[uint64][]bedx.Feature)
	var hits []chainHit
	for _, db := range dbs {
		if pc.onlyDb != "" && db != pc.onlyDb {
			continue
		}
		records, err := gatherSortedRecords(pm, db)
		if err != nil {
			return err
		}
		dbHits, err := chainDB(db, records, digits, pc)
		if err != nil {
			return err
		}
		for _, h := range dbHits {
			hits = append(hits, h)
			if byDBArticle[h.db] == nil {
				byDBArticle[h.db] = make(map[uint64][]bedx.Feature)
			}
			byDBArticle[h.db][h.article] = append(byDBArticle[h.db][h.article], h.feature)
		}
	}

	chain.ApplyFeatureCap(byDBArticle, pc.cfg.MaxFeatures)

	bedDir := pm.BedDir()
	if err := os.MkdirAll(bedDir, 0o755); err != nil {
		return err
	}
	for _, db := range dbs {
		survivors := byDBArticle[db]
		var feats []bedx.Feature
		var pslOut []psl.Record
		for _, h := range hits {
			if h.db != db {
				continue
			}
			if _, ok := survivors[h.article]; !ok {
				continue
			}
			feats = append(feats, h.feature)
			pslOut = append(pslOut, h.fused...)
		}
		bedx.SortByPosition(feats)
		if err := writeBedFile(filepath.Join(bedDir, db+".bed"), feats); err != nil {
			return err
		}
		if err := writePSLFile(filepath.Join(bedDir, db+".psl"), pslOut); err != nil {
			return err
		}
	}

	return pm.MarkComplete(pathmodel.StateChain)
}

// chainDB runs the full per-db chain pipeline: near-best filter,
// chunk re-split, per-chunk chaining, balancing and feature
// materialization.
func chainDB(db string, records []psl.Record, digits annotid.Digits, pc *pipelineContext) ([]chainHit, error) {
	filtered := chain.NearBestFilter(records, minAlignSize)
	assigner := chain.ChunkAssigner{ChunkArticleCount: pc.cfg.ChunkArticleCount}
	chunks := chain.SplitByChunk(filtered, digits, assigner, pc.cfg.MaxDbMatchCount)

	var chains []chain.Chain
	for _, chunkRecords := range chunks {
		cs, err := chain.ChainChunk(chunkRecords, digits, pc.cfg.MaxChainDist)
		if err != nil {
			return nil, err
		}
		chains = append(chains, cs...)
	}
	balanced := chain.Balance(chains)

	var hits []chainHit
	for _, c := range balanced {
		f, fused, ok := chain.Feature(c, digits, pc.cfg.MinChainCoverage, pc.cfg.MaxChainLength)
		if !ok {
			continue
		}
		hits = append(hits, chainHit{db: db, article: c.ArticleID, feature: f, fused: fused})
	}
	return hits, nil
}

// sortedDBs returns the union of dbs that have a sorted alignment file
// in any of the three groups.
func sortedDBs(pm pathmodelPath) ([]string, error) {
	seen := make(map[string]bool)
	for _, group := range []align.Group{align.GenomeGroup, align.CDNAGroup, align.ProteinGroup} {
		matches, err := filepath.Glob(filepath.Join(pm.SortDir(string(group)), "*.psl"))
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			seen[stemName(m)] = true
		}
	}
	out := make([]string, 0, len(seen))
	for db := range seen {
		out = append(out, db)
	}
	return out, nil
}

func stemName(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}

// gatherSortedRecords reads db's sorted psl file from every group that
// has one, merging them through a disk-backed chain.StagingIndex so the
// records of all groups come back in one target-position order. The
// merged records are returned as a single in-memory slice.
func gatherSortedRecords(pm pathmodelPath, db string) ([]psl.Record, error) {
	stagingDir := filepath.Join(pm.Batch.Dir, "chain")
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return nil, err
	}
	stagingPath := filepath.Join(stagingDir, db+".staging.kv")
	idx, err := chain.NewStagingIndex(stagingPath)
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(stagingPath)
	defer idx.Close()

	for _, group := range []align.Group{align.GenomeGroup, align.CDNAGroup, align.ProteinGroup} {
		path := filepath.Join(pm.SortDir(string(group)), db+".psl")
		f, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		sc := psl.NewScanner(f)
		for sc.Scan() {
			if err := idx.Put(sc.Record()); err != nil {
				f.Close()
				return nil, err
			}
		}
		f.Close()
	}
	return idx.All()
}

// writeBedFile writes feats to path, creating an empty sentinel file
// when there are none so downstream steps can distinguish "ran, found
// nothing" from "never ran" (spec.md §9 Open Question 3).
func writeBedFile(path string, feats []bedx.Feature) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	for _, ft := range feats {
		if _, err := ft.WriteTo(f); err != nil {
			return err
		}
	}
	return nil
}

func writePSLFile(path string, records []psl.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	for _, r := range records {
		if _, err := r.WriteTo(f); err != nil {
			return err
		}
	}
	return nil
}
