// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/kortschak/pubs/internal/align"
	"github.com/kortschak/pubs/internal/cluster"
	"github.com/kortschak/pubs/internal/pathmodel"
)

// runBlat drives AlignDispatcher (spec.md §4.5) over the current
// batch's FASTA shards: one aligner job per (shard, db, bucket) for the
// genome group, one per (shard, db, cDNA library) for the cDNA group,
// and one per (shard, db, bucket) for the protein group.
func runBlat(pc *pipelineContext) error {
	b, err := pc.currentBatch()
	if err != nil {
		return err
	}
	pm := pc.pathModel(b)
	runner := &cluster.Local{}

	if err := submitGenomeJobs(pc, pm, runner); err != nil {
		return err
	}
	if err := submitCDNAJobs(pc, pm, runner); err != nil {
		return err
	}
	if err := submitProteinJobs(pc, pm, runner); err != nil {
		return err
	}

	for _, res := range runner.Finish(context.Background()) {
		if res.Err != nil {
			return res.Err
		}
	}
	return pm.MarkComplete(pathmodel.StateBlat)
}

// submitGenomeJobs submits one job per (fasta shard, db, bucket)
// against the db's indexed genome target.
func submitGenomeJobs(pc *pipelineContext, pm pathmodel.PathModel, runner cluster.Runner) error {
	fastaDir := pm.FastaDir("dna")
	dbs, err := subdirs(fastaDir)
	if err != nil {
		return err
	}
	for _, db := range dbs {
		if pc.onlyDb != "" && db != pc.onlyDb {
			continue
		}
		for _, bucket := range []string{"short", "long"} {
			shards, err := fastaShards(filepath.Join(fastaDir, db, bucket))
			if err != nil {
				return err
			}
			if len(shards) == 0 {
				continue
			}
			outDir := filepath.Join(pm.BlatDir(string(align.GenomeGroup)), db, bucket)
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return err
			}
			opts := pc.cfg.SeqTypeOptions[bucket].AlignerOpts
			d := align.Dispatcher{Runner: runner, Opts: opts}
			target := align.Target{DB: db, Path: filepath.Join(pc.cfg.GenomeDir, db+".2bit")}
			for _, shard := range shards {
				out := outDir
				d.Submit(align.GenomeGroup, shard, []align.Target{target}, func(string) string {
					return filepath.Join(out, strings.TrimSuffix(filepath.Base(shard), ".fa")+".psl")
				})
			}
		}
	}
	return nil
}

// submitCDNAJobs submits one job per (fasta shard, db, cDNA library
// 2bit file). The library file itself is never shredded, per spec.md
// §4.5.
func submitCDNAJobs(pc *pipelineContext, pm pathmodel.PathModel, runner cluster.Runner) error {
	fastaDir := pm.FastaDir("dna")
	dbs, err := subdirs(fastaDir)
	if err != nil {
		return err
	}
	for _, db := range dbs {
		if pc.onlyDb != "" && db != pc.onlyDb {
			continue
		}
		libDir := filepath.Join(pc.cfg.CdnaDir, db)
		libs, err := twoBitFiles(libDir)
		if err != nil {
			return err
		}
		if len(libs) == 0 {
			continue
		}
		for _, bucket := range []string{"short", "long"} {
			shards, err := fastaShards(filepath.Join(fastaDir, db, bucket))
			if err != nil {
				return err
			}
			if len(shards) == 0 {
				continue
			}
			outDir := filepath.Join(pm.BlatDir(string(align.CDNAGroup)), db, bucket)
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return err
			}
			opts := pc.cfg.SeqTypeOptions[bucket].AlignerOpts
			d := align.Dispatcher{Runner: runner, Opts: opts}
			var targets []align.Target
			for _, lib := range libs {
				targets = append(targets, align.Target{DB: db, Path: lib})
			}
			out := outDir
			for _, shard := range shards {
				d.Submit(align.CDNAGroup, shard, targets, func(string) string {
					return filepath.Join(out, strings.TrimSuffix(filepath.Base(shard), ".fa")+".psl")
				})
			}
		}
	}
	return nil
}

// submitProteinJobs submits one job per (fasta shard, db, bucket)
// against the db's genome target, using protein-specific aligner
// options and no precomputed index file, per spec.md §4.5.
func submitProteinJobs(pc *pipelineContext, pm pathmodel.PathModel, runner cluster.Runner) error {
	fastaDir := pm.FastaDir("prot")
	dbs, err := subdirs(fastaDir)
	if err != nil {
		return err
	}
	for _, db := range dbs {
		if pc.onlyDb != "" && db != pc.onlyDb {
			continue
		}
		for _, bucket := range []string{"short", "long"} {
			shards, err := fastaShards(filepath.Join(fastaDir, db, bucket))
			if err != nil {
				return err
			}
			if len(shards) == 0 {
				continue
			}
			outDir := filepath.Join(pm.BlatDir(string(align.ProteinGroup)), db, bucket)
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return err
			}
			d := align.Dispatcher{Runner: runner, Opts: pc.cfg.ProtBlatOptions}
			target := align.Target{DB: db, Path: filepath.Join(pc.cfg.GenomeDir, db+".2bit")}
			out := outDir
			for _, shard := range shards {
				d.Submit(align.ProteinGroup, shard, []align.Target{target}, func(string) string {
					return filepath.Join(out, strings.TrimSuffix(filepath.Base(shard), ".fa")+".psl")
				})
			}
		}
	}
	return nil
}

func subdirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

func fastaShards(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".fa") {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out, nil
}

func twoBitFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".2bit") {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out, nil
}
