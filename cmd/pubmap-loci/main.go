// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// pubmap-loci overlaps a chain-engine feature BED against a
// lociDir/<db>.bed gene-locus file, emitting one annotId\tgene,gene,...
// line per feature that overlaps at least one locus. It is a standalone
// wrapper around the same interval.IntTree overlap internal/table uses
// to join loci onto chained features, useful for operators checking a
// locus file or a chain run outside the full tables step.
//
// usage: pubmap-loci -loci lociDir/hg19.bed < hg19.bed > hg19.loci.tab
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/kortschak/pubs/internal/table"
)

func main() {
	lociPath := flag.String("loci", "", "path to the lociDir/<db>.bed gene-locus file (required)")
	flag.Usage = func() {
		fmt.Println(`usage: pubmap-loci -loci lociDir/hg19.bed < hg19.bed > hg19.loci.tab`)
		os.Exit(0)
	}
	flag.Parse()
	if *lociPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	loci, err := readLoci(*lociPath)
	if err != nil {
		log.Fatal(err)
	}
	idx, err := table.BuildLocusIndex(loci)
	if err != nil {
		log.Fatal(err)
	}

	sc := bufio.NewScanner(os.Stdin)
	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		f := strings.Split(line, "\t")
		if len(f) < 4 {
			log.Printf("skipping malformed feature line: %q", line)
			continue
		}
		start, err := strconv.Atoi(f[1])
		if err != nil {
			log.Printf("skipping malformed feature line: %q", line)
			continue
		}
		end, err := strconv.Atoi(f[2])
		if err != nil {
			log.Printf("skipping malformed feature line: %q", line)
			continue
		}
		names := idx.Overlapping(f[0], start, end)
		if len(names) == 0 {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\n", f[3], strings.Join(names, ","))
	}
	if err := sc.Err(); err != nil {
		log.Fatal(err)
	}
}

// readLoci parses a lociDir/<db>.bed file: chrom, start, end, name.
func readLoci(path string) ([]table.LociRecord, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	var recs []table.LociRecord
	sc := bufio.NewScanner(fh)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		f := strings.Split(line, "\t")
		if len(f) < 4 {
			continue
		}
		start, err := strconv.Atoi(f[1])
		if err != nil {
			continue
		}
		end, err := strconv.Atoi(f[2])
		if err != nil {
			continue
		}
		recs = append(recs, table.LociRecord{Chrom: f[0], Start: start, End: end, Name: f[3]})
	}
	return recs, sc.Err()
}
