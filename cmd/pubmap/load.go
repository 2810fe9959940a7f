// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kortschak/pubs/internal/cluster"
	"github.com/kortschak/pubs/internal/loader"
)

// runLoad drives the idempotent bulk-load stage (spec.md §4.9): it
// verifies the tracking table against disk, submits one load job per
// untracked table file across every batch, and records successfully
// loaded files in pubsLoadedFiles.
func runLoad(pc *pipelineContext) error {
	db, err := sql.Open("sqlite", pc.cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := loader.EnsureTrackingTable(db); err != nil {
		return err
	}
	tracked, err := loader.ReadTracking(db)
	if err != nil {
		return err
	}
	if err := loader.CheckConsistency(tracked, loader.OSStatSize); err != nil {
		return err
	}

	trackedSet := make(map[string]bool, len(tracked))
	for _, f := range tracked {
		trackedSet[f.FileName] = true
	}
	appendMode := loader.AppendMode(tracked)

	batches, err := pc.allBatches()
	if err != nil {
		return err
	}

	var allFiles []loader.TableFile
	for _, b := range batches {
		pm := pc.pathModel(b)
		files, err := loader.EnumerateTableFiles(pm.TableDir(), trackedSet)
		if err != nil {
			return err
		}
		allFiles = append(allFiles, files...)
	}
	if len(allFiles) == 0 {
		return nil
	}

	runner := &cluster.Local{}
	loaded, err := loader.RunLoads(runner, allFiles, pc.tablePrefix, appendMode)
	if err != nil {
		return err
	}
	return loader.InsertTracking(db, loaded, time.Now())
}
