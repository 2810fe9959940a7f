// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kortschak/pubs/internal/annotid"
	"github.com/kortschak/pubs/internal/bedx"
	"github.com/kortschak/pubs/internal/pathmodel"
	"github.com/kortschak/pubs/internal/psl"
	"github.com/kortschak/pubs/internal/table"
)

// runTables drives the TableBuilder stage (spec.md §4.8): for every
// db's chained bed/psl output, join article metadata, impact factors,
// classes and locus overlap, and write the loadable per-db table
// files under the batch's table directory.
func runTables(pc *pipelineContext) error {
	b, err := pc.currentBatch()
	if err != nil {
		return err
	}
	pm := pc.pathModel(b)
	digits := pc.digits()

	articles, err := readArticleMeta(pc.cfg.TextRoot, pc.dataset)
	if err != nil {
		return err
	}
	impact, err := readImpactTable(pc.cfg.TextRoot, pc.dataset)
	if err != nil {
		return err
	}
	classes, err := readClassesTable(pc.cfg.TextRoot, pc.dataset)
	if err != nil {
		return err
	}

	bedFiles, err := filepath.Glob(filepath.Join(pm.BedDir(), "*.bed"))
	if err != nil {
		return err
	}

	tableDir := pm.TableDir()
	if err := os.MkdirAll(tableDir, 0o755); err != nil {
		return err
	}

	haveMapping := make(map[uint64]bool)
	for _, bedPath := range bedFiles {
		db := stemName(bedPath)
		if pc.onlyDb != "" && db != pc.onlyDb {
			continue
		}
		loci, err := readLociIndex(pc.cfg.LociDir, db)
		if err != nil {
			return err
		}

		feats, err := readBedFeatures(bedPath)
		if err != nil {
			return err
		}
		records, err := readPSLFile(filepath.Join(pm.BedDir(), db+".psl"))
		if err != nil {
			return err
		}

		chains := pairFeaturesWithPSL(feats, records, digits)
		ext := table.Enrich(chains, articles, impact, classes, loci)
		table.SortBedFiles(map[string][]table.ExtFeature{db: ext})

		for _, e := range ext {
			haveMapping[digits.ArticleID(e.AnnotID)] = true
		}

		if err := writeExtBedFile(filepath.Join(tableDir, db+".chainedAnnot.bed"), ext); err != nil {
			return err
		}
	}

	haveMarker, err := readMarkerArticles(filepath.Join(pm.Batch.Dir, "identifiers", "markerAnnot.tab"), digits)
	if err != nil {
		return err
	}

	rows := table.BuildArticleTable(articles, haveMapping, haveMarker)
	articleFile, err := os.Create(filepath.Join(tableDir, "hgFixed.article.tab"))
	if err != nil {
		return err
	}
	defer articleFile.Close()
	if err := table.WriteArticleTable(articleFile, rows); err != nil {
		return err
	}

	return pm.MarkComplete(pathmodel.StateTables)
}

func writeExtBedFile(path string, feats []table.ExtFeature) error {
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

func readBedFeatures(path string) ([]bedx.Feature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []bedx.Feature
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		f, ok := parseBedLine(line)
		if ok {
			out = append(out, f)
		}
	}
	return out, nil
}

func parseBedLine(line string) (bedx.Feature, bool) {
	f := strings.Split(line, "\t")
	if len(f) < 14 {
		return bedx.Feature{}, false
	}
	start, err1 := strconv.Atoi(f[1])
	end, err2 := strconv.Atoi(f[2])
	annotID, err3 := strconv.ParseUint(f[12], 10, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return bedx.Feature{}, false
	}
	blockSizes := splitCSV(f[10])
	blockStarts := splitCSV(f[11])
	return bedx.Feature{
		Chrom:       f[0],
		Start:       start,
		End:         end,
		Name:        f[3],
		BlockSizes:  blockSizes,
		BlockStarts: blockStarts,
		AnnotID:     annotID,
	}, true
}

func splitCSV(s string) []int {
	s = strings.TrimSuffix(s, ",")
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err == nil {
			out = append(out, n)
		}
	}
	return out
}

func readPSLFile(path string) ([]psl.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	sc := psl.NewScanner(f)
	var out []psl.Record
	for sc.Scan() {
		out = append(out, sc.Record())
	}
	return out, nil
}

// pairFeaturesWithPSL associates each bed feature with the fused psl
// rows belonging to the same article and falling within its span,
// reconstructing the per-feature grouping that the chain engine held
// in memory before writing its disk-staged bed/psl output.
func pairFeaturesWithPSL(feats []bedx.Feature, records []psl.Record, digits annotid.Digits) []table.ChainRecord {
	byArticle := make(map[uint64][]psl.Record)
	for _, r := range records {
		id, err := strconv.ParseUint(r.QName, 10, 64)
		if err != nil {
			continue
		}
		article := digits.ArticleID(id)
		byArticle[article] = append(byArticle[article], r)
	}

	out := make([]table.ChainRecord, 0, len(feats))
	for _, f := range feats {
		article := digits.ArticleID(f.AnnotID)
		var fused []psl.Record
		for _, r := range byArticle[article] {
			_, chrom, _, err := r.Target()
			if err != nil || chrom != f.Chrom {
				continue
			}
			if r.TStart < f.Start || r.TEnd > f.End {
				continue
			}
			fused = append(fused, r)
		}
		out = append(out, table.NewChainRecord(f, fused))
	}
	return out
}
