// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"compress/gzip"
	"os"
	"path/filepath"

	"github.com/kortschak/pubs/internal/annotation"
	"github.com/kortschak/pubs/internal/pathmodel"
	"github.com/kortschak/pubs/internal/table"
)

// runIdentifiers rewrites this batch's marker annotations into the
// sorted, article-count-aggregated form the table stage loads, the
// "identifiers" step between chain and tables (spec.md §4.1, §4.8).
func runIdentifiers(pc *pipelineContext) error {
	b, err := pc.currentBatch()
	if err != nil {
		return err
	}
	pm := pc.pathModel(b)
	digits := pc.digits()

	markers, err := readMarkerShards(pm.AnnotDir("markers"))
	if err != nil {
		return err
	}

	sorted, counts := table.RewriteMarkers(markers, digits)

	idDir := filepath.Join(pm.Batch.Dir, "identifiers")
	if err := os.MkdirAll(idDir, 0o755); err != nil {
		return err
	}

	markerFile, err := os.Create(filepath.Join(idDir, "markerAnnot.tab"))
	if err != nil {
		return err
	}
	defer markerFile.Close()
	mw := annotation.NewMarkerWriter(markerFile)
	for _, m := range sorted {
		if err := mw.Write(m); err != nil {
			return err
		}
	}

	countsFile, err := os.Create(filepath.Join(idDir, "markerCounts.tab"))
	if err != nil {
		return err
	}
	defer countsFile.Close()
	if err := table.WriteMarkerCounts(countsFile, counts); err != nil {
		return err
	}

	return pm.MarkComplete(pathmodel.StateIdentifiers)
}

func readMarkerShards(dir string) ([]annotation.MarkerAnnotation, error) {
	shards, err := tabGzShards(dir)
	if err != nil {
		return nil, err
	}
	var out []annotation.MarkerAnnotation
	for _, shard := range shards {
		f, err := os.Open(shard)
		if err != nil {
			return nil, err
		}
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		sc, err := annotation.NewMarkerScanner(gz)
		if err != nil {
			gz.Close()
			f.Close()
			return nil, err
		}
		for sc.Scan() {
			out = append(out, sc.Record())
		}
		gz.Close()
		f.Close()
	}
	return out, nil
}
