// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kortschak/pubs/internal/cluster"
	"github.com/kortschak/pubs/internal/pathmodel"
)

// textChunks lists the text chunk files for dataset under its
// configured text root, the upstream corpus that spec.md §1 treats as
// an external collaborator.
func textChunks(textRoot, dataset string) ([]string, error) {
	dir := filepath.Join(textRoot, dataset)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// runAnnotAll drives a fresh batch through the three annotators (DNA,
// protein, marker), per spec.md §4.3: it creates a new batch
// (pathmodel.NewBatch), submits one annotate job per (annotator, chunk) pair
// to the external cluster runner, waits for completion, and records
// the chunk list and consumed updateIds before flagging StateAnnot.
func runAnnotAll(pc *pipelineContext) error {
	updateIDs, err := textChunks(pc.cfg.TextRoot, pc.dataset)
	if err != nil {
		return err
	}
	unannotated, err := pathmodel.UnannotatedUpdateIds(pc.outDir, pc.dataset, updateIDs)
	if err != nil {
		return err
	}
	if len(unannotated) == 0 {
		return fmt.Errorf("no new updateIds to annotate for dataset %s", pc.dataset)
	}

	b, err := pathmodel.NewBatch(pc.outDir, pc.dataset)
	if err != nil {
		return err
	}
	pm := pc.pathModel(b)

	runner := &cluster.Local{}
	for _, kind := range []string{"dna", "prot", "markers"} {
		if err := submitAnnotJobs(pc, pm, runner, kind, unannotated); err != nil {
			return err
		}
	}
	for _, res := range runner.Finish(context.Background()) {
		if res.Err != nil {
			return res.Err
		}
	}

	if err := pathmodel.WriteList(pm.UpdateIDFile(), unannotated); err != nil {
		return err
	}
	if err := pathmodel.WriteList(pm.ChunkListFile(), unannotated); err != nil {
		return err
	}
	return pm.MarkComplete(pathmodel.StateAnnot)
}

// runAnnotOne runs a single annotator (kind in {dna,prot,markers}) over
// the current batch's updateIds, for the split-out "annotSeq"/
// "annotMarker" CLI steps.
func runAnnotOne(pc *pipelineContext, kind string) error {
	b, err := pc.currentBatch()
	if err != nil {
		return err
	}
	pm := pc.pathModel(b)
	updateIDs, err := pathmodel.ReadList(pm.UpdateIDFile())
	if err != nil {
		return err
	}
	runner := &cluster.Local{}
	if err := submitAnnotJobs(pc, pm, runner, kind, updateIDs); err != nil {
		return err
	}
	for _, res := range runner.Finish(context.Background()) {
		if res.Err != nil {
			return res.Err
		}
	}
	return nil
}

// submitAnnotJobs queues one annotate job per chunk for the given
// annotator kind. The annotator binary itself is an opaque per-chunk
// transform (spec.md §1): this driver only assigns its annotId offset
// and its input/output paths.
func submitAnnotJobs(pc *pipelineContext, pm pathmodelPath, runner cluster.Runner, kind string, updateIDs []string) error {
	offset := pc.cfg.AnnotatorOffsets[kind] + pc.cfg.SpecDatasetAnnotIdOffset[pc.dataset]
	outDir := pm.AnnotDir(kind)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	for _, chunk := range updateIDs {
		in := filepath.Join(pc.cfg.TextRoot, pc.dataset, chunk)
		out := filepath.Join(outDir, chunk+".tab.gz")
		runner.Submit(cluster.Job{
			Name: fmt.Sprintf("annot:%s:%s", kind, chunk),
			Argv: []string{"pubmap-annotate", "-kind=" + kind, fmt.Sprintf("-offset=%d", offset), in, out},
		})
	}
	return nil
}

// pathmodelPath is the subset of pathmodel.PathModel this file needs;
// named locally to keep the submitAnnotJobs signature short.
type pathmodelPath = pathmodel.PathModel
