// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"path/filepath"
	"strconv"

	"github.com/kortschak/pubs/internal/annotid"
	"github.com/kortschak/pubs/internal/config"
	"github.com/kortschak/pubs/internal/pathmodel"
)

// loadConfig loads the pipeline configuration; it is a thin wrapper
// around config.Load.
func loadConfig(path string) (*config.Config, error) {
	return config.Load(path)
}

// pipelineContext is this CLI's concrete instantiation of
// config.PipelineContext (Design Notes §9): every stage function takes
// one of these instead of touching process-wide state.
type pipelineContext struct {
	cfg         *config.Config
	dataset     string
	outDir      string
	onlyDb      string
	skipConvert bool
	tablePrefix string
}

func (pc *pipelineContext) digits() annotid.Digits {
	return annotid.Digits{Article: pc.cfg.ArticleDigits, File: pc.cfg.FileDigits, Annot: pc.cfg.AnnotDigits}
}

// currentBatch resolves the batch a stage should operate on: the
// highest-numbered batch that has not yet completed "tables".
func (pc *pipelineContext) currentBatch() (pathmodel.Batch, error) {
	b, ok, err := pathmodel.FindCurrentBatch(pc.outDir, pc.dataset)
	if err != nil {
		return pathmodel.Batch{}, err
	}
	if !ok {
		return pathmodel.Batch{}, &config.ConfigError{Reason: "no batch exists yet for dataset " + pc.dataset + "; run the annot step first"}
	}
	return b, nil
}

func (pc *pipelineContext) pathModel(b pathmodel.Batch) pathmodel.PathModel {
	return pathmodel.PathModel{Dataset: pc.dataset, OutDir: pc.outDir, Batch: b}
}

// allBatches returns every batch recorded for the dataset, ascending
// by id, for the load step, which reads across every batch's
// workspace.
func (pc *pipelineContext) allBatches() ([]pathmodel.Batch, error) {
	cur, err := pc.currentBatch()
	if err != nil {
		return nil, err
	}
	// Every batch up to and including the current one has contributed
	// annotations; later stages merge across all of them.
	var out []pathmodel.Batch
	for id := 0; id <= cur.ID; id++ {
		dir := filepath.Join(pc.outDir, pc.dataset, "batches", strconv.Itoa(id))
		out = append(out, pathmodel.Batch{ID: id, Dir: dir})
	}
	return out, nil
}
