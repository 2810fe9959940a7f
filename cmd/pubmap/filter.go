// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kortschak/pubs/internal/annotation"
	"github.com/kortschak/pubs/internal/annotid"
	"github.com/kortschak/pubs/internal/config"
	"github.com/kortschak/pubs/internal/pathmodel"
	"github.com/kortschak/pubs/internal/seqfilter"
)

// runFilter drives SeqFilter (spec.md §4.4) over the current batch's
// annotated DNA and protein shards: per-article dedup and length
// filtering, then FASTA sharding by target db and size bucket.
func runFilter(pc *pipelineContext) error {
	b, err := pc.currentBatch()
	if err != nil {
		return err
	}
	pm := pc.pathModel(b)
	digits := pc.digits()

	kinds := []struct {
		name   string
		minLen int
	}{
		{"dna", pc.cfg.MinSeqLen},
		{"prot", pc.cfg.MinProtSeqLen},
	}
	for _, k := range kinds {
		if err := filterKind(pc, pm, digits, k.name, k.minLen); err != nil {
			return err
		}
	}
	return pm.MarkComplete(pathmodel.StateFilter)
}

func filterKind(pc *pipelineContext, pm pathmodel.PathModel, digits annotid.Digits, kind string, minLen int) error {
	annotDir := pm.AnnotDir(kind)
	shards, err := tabGzShards(annotDir)
	if err != nil {
		return err
	}
	if len(shards) == 0 {
		return nil
	}

	tabDir := pm.SeqDir(kind)
	if err := os.MkdirAll(tabDir, 0o755); err != nil {
		return err
	}
	fastaDir := pm.FastaDir(kind)

	dedupPath := filepath.Join(pm.Batch.Dir, "filter", kind+"Dedup.kv")
	if err := os.MkdirAll(filepath.Dir(dedupPath), 0o755); err != nil {
		return err
	}
	dedup, err := seqfilter.OpenDedup(dedupPath)
	if err != nil {
		return err
	}
	defer dedup.Close()

	maxSizes := map[seqfilter.Bucket]int{
		seqfilter.Short: pc.cfg.FastaShardSizeFor("short"),
		seqfilter.Long:  pc.cfg.FastaShardSizeFor("long"),
	}
	router := seqfilter.NewShardRouter(maxSizes, func(db string, bucket seqfilter.Bucket, idx int) (io.WriteCloser, error) {
		dir := filepath.Join(fastaDir, db, string(bucket))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		return os.Create(filepath.Join(dir, "shard-"+strconv.Itoa(idx)+".fa"))
	})
	defer router.Close()

	for _, shard := range shards {
		tabOutPath := filepath.Join(tabDir, strings.TrimSuffix(filepath.Base(shard), ".tab.gz")+".tab")
		if err := filterShard(shard, tabOutPath, dedup, digits, minLen, pc.cfg.MaxSeqLen); err != nil {
			return err
		}
		if err := shardToFasta(tabOutPath, router, digits, kind, pc.cfg); err != nil {
			return err
		}
	}
	return nil
}

func filterShard(shardPath, tabOutPath string, dedup *seqfilter.Dedup, digits annotid.Digits, minLen, maxLen int) error {
	in, err := os.Open(shardPath)
	if err != nil {
		return err
	}
	defer in.Close()
	gz, err := gzip.NewReader(in)
	if err != nil {
		return err
	}
	defer gz.Close()

	out, err := os.Create(tabOutPath)
	if err != nil {
		return err
	}
	defer out.Close()

	_, _, err = seqfilter.Filter(out, gz, dedup, digits.ArticleID, minLen, maxLen)
	return err
}

func shardToFasta(tabPath string, router *seqfilter.ShardRouter, digits annotid.Digits, kind string, cfg *config.Config) error {
	f, err := os.Open(tabPath)
	if err != nil {
		return err
	}
	defer f.Close()

	sc, err := annotation.NewSeqScanner(f)
	if err != nil {
		return err
	}
	for sc.Scan() {
		a := sc.Record()
		if kind == "prot" && !seqfilter.AcceptProtein(a) {
			continue
		}
		article := digits.ArticleID(a.AnnotID)
		bucket := seqfilter.BucketFor(len(a.Seq), cfg.ShortSeqCutoff)
		dbs := seqfilter.TargetDBs(a, cfg.DefaultGenomes, cfg.AlwaysUseGenomes)
		for _, db := range dbs {
			if err := router.Write(db, bucket, article, strconv.FormatUint(a.AnnotID, 10), a.Snippet, a.Seq); err != nil {
				return err
			}
		}
	}
	return sc.Err()
}

// tabGzShards lists the .tab.gz annotation shard files under dir.
func tabGzShards(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".tab.gz") {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out, nil
}
