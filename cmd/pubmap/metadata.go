// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kortschak/pubs/internal/annotation"
	"github.com/kortschak/pubs/internal/annotid"
	"github.com/kortschak/pubs/internal/table"
)

// readArticleMeta loads the dataset's article metadata table, an
// optional tab file of (articleId, publisher, pmid, doi, printIssn,
// journal, title, firstAuthor, year), the corpus's own bibliographic
// record rather than anything the text-mining stages produce. A
// missing file yields an empty map: TableBuilder still runs, just
// without metadata to join.
func readArticleMeta(textRoot, dataset string) (map[uint64]table.ArticleMeta, error) {
	out := make(map[uint64]table.ArticleMeta)
	data, err := os.ReadFile(filepath.Join(textRoot, dataset, "articles.tab"))
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, err
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		f := strings.Split(line, "\t")
		if len(f) != 9 {
			continue
		}
		id, err := strconv.ParseUint(f[0], 10, 64)
		if err != nil {
			continue
		}
		year, _ := strconv.Atoi(f[8])
		out[id] = table.ArticleMeta{
			ArticleID:   id,
			Publisher:   f[1],
			PMID:        f[2],
			DOI:         f[3],
			PrintISSN:   f[4],
			Journal:     f[5],
			Title:       f[6],
			FirstAuthor: f[7],
			Year:        year,
		}
	}
	return out, nil
}

// readImpactTable loads an optional (issn, impact) tab file.
func readImpactTable(textRoot, dataset string) (map[string]int, error) {
	out := make(map[string]int)
	data, err := os.ReadFile(filepath.Join(textRoot, dataset, "impact.tab"))
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, err
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		f := strings.Split(line, "\t")
		if len(f) != 2 {
			continue
		}
		n, err := strconv.Atoi(f[1])
		if err != nil {
			continue
		}
		out[f[0]] = n
	}
	return out, nil
}

// readClassesTable loads an optional (articleId, comma-joined classes)
// tab file.
func readClassesTable(textRoot, dataset string) (map[uint64][]string, error) {
	out := make(map[uint64][]string)
	data, err := os.ReadFile(filepath.Join(textRoot, dataset, "classes.tab"))
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, err
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		f := strings.Split(line, "\t")
		if len(f) != 2 {
			continue
		}
		id, err := strconv.ParseUint(f[0], 10, 64)
		if err != nil {
			continue
		}
		out[id] = strings.Split(f[1], ",")
	}
	return out, nil
}

// readLociIndex builds a table.LocusIndex from lociDir/<db>.bed,
// tolerant of a db with no loci file (spec.md §4.8 locus overlap join
// is best-effort per db).
func readLociIndex(lociDir, db string) (table.LocusIndex, error) {
	data, err := os.ReadFile(filepath.Join(lociDir, db+".bed"))
	if err != nil {
		if os.IsNotExist(err) {
			return table.LocusIndex{}, nil
		}
		return table.LocusIndex{}, err
	}
	var loci []table.LociRecord
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		f := strings.Split(line, "\t")
		if len(f) < 4 {
			continue
		}
		start, err1 := strconv.Atoi(f[1])
		end, err2 := strconv.Atoi(f[2])
		if err1 != nil || err2 != nil {
			continue
		}
		loci = append(loci, table.LociRecord{Chrom: f[0], Start: start, End: end, Name: f[3]})
	}
	return table.BuildLocusIndex(loci)
}

// readMarkerArticles reports which articles have at least one marker
// hit recorded in the identifiers stage's markerAnnot.tab.
func readMarkerArticles(path string, digits annotid.Digits) (map[uint64]bool, error) {
	out := make(map[uint64]bool)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, err
	}
	defer f.Close()
	sc, err := annotation.NewMarkerScanner(f)
	if err != nil {
		return nil, err
	}
	for sc.Scan() {
		m := sc.Record()
		out[digits.ArticleID(m.AnnotID)] = true
	}
	return out, nil
}
