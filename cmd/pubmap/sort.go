// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"log"
	"os"
	"path/filepath"

	"github.com/kortschak/pubs/internal/align"
	"github.com/kortschak/pubs/internal/pathmodel"
	"github.com/kortschak/pubs/internal/psl"
	"github.com/kortschak/pubs/internal/sortlift"
)

// runSort drives SortLift (spec.md §4.6) over every db's raw alignment
// output in each of the three groups: concatenate, sort by target
// coordinate, and lift cDNA/protein alignments to genome space.
func runSort(pc *pipelineContext) error {
	b, err := pc.currentBatch()
	if err != nil {
		return err
	}
	pm := pc.pathModel(b)

	for _, group := range []align.Group{align.GenomeGroup, align.CDNAGroup, align.ProteinGroup} {
		dbs, err := subdirs(pm.BlatDir(string(group)))
		if err != nil {
			return err
		}
		for _, db := range dbs {
			if pc.onlyDb != "" && db != pc.onlyDb {
				continue
			}
			if err := sortOneDB(pc, pm, group, db); err != nil {
				return err
			}
		}
	}
	return pm.MarkComplete(pathmodel.StateSort)
}

func sortOneDB(pc *pipelineContext, pm pathmodel.PathModel, group align.Group, db string) error {
	raw, err := concatPSL(filepath.Join(pm.BlatDir(string(group)), db))
	if err != nil {
		return err
	}

	var mapping sortlift.Mapping
	if group != align.GenomeGroup {
		mapping, err = loadDBMapping(pc.cfg.CdnaDir, db)
		if err != nil {
			log.Printf("sort: %s/%s: %v; proceeding without lift", group, db, err)
			mapping = nil
		}
	}

	out := sortlift.Process(raw, mapping)

	outDir := pm.SortDir(string(group))
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(outDir, db+".psl"))
	if err != nil {
		return err
	}
	defer f.Close()
	return sortlift.WriteAll(f, out)
}

// concatPSL reads every .psl file nested anywhere under dir.
func concatPSL(dir string) ([]psl.Record, error) {
	var out []psl.Record
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() || filepath.Ext(path) != ".psl" {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		out = append(out, sortlift.ReadAll(f)...)
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return out, nil
}

// loadDBMapping loads the coordinate-mapping psl for db, tolerant of a
// missing lift file per spec.md §4.6.
func loadDBMapping(cdnaDir, db string) (sortlift.Mapping, error) {
	matches, err := filepath.Glob(filepath.Join(cdnaDir, db, "*.psl"))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, os.ErrNotExist
	}
	m := make(sortlift.Mapping)
	for _, path := range matches {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		for k, v := range sortlift.LoadMapping(f) {
			m[k] = v
		}
		f.Close()
	}
	return m, nil
}
