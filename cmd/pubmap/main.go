// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// pubmap runs one step (or a contiguous range of steps) of the
// text-mining-to-genome mapping pipeline for a dataset: annotate the
// text corpus, filter and align the recognized sequences, chain the
// alignments into per-article genomic features, build loadable
// tables, and load them into the genome browser's database.
//
// usage: pubmap <dataset> <step>[-<step>] [options]
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
)

// steps lists every known pipeline step in execution order, the same
// order spec.md §6 names them in. The range form "<fromStep>-<toStep>"
// runs every step between the two, inclusive.
var steps = []string{
	"annot", "annotMarker", "annotSeq", "filter", "blat", "sort",
	"chain", "identifiers", "tables", "load", "dropAll", "switchOver",
	"expFasta", "expCdr3",
}

func stepIndex(name string) int {
	for i, s := range steps {
		if s == name {
			return i
		}
	}
	return -1
}

func main() {
	log.SetFlags(0)
	log.SetPrefix("pubmap: ")

	configPath := flag.String("config", "pubmap.json", "path to the pipeline configuration file")
	outDir := flag.String("outDir", "", "override the configured output root directory")
	onlyDb := flag.String("onlyDb", "", "restrict this step to a single target database")
	skipConvert := flag.Bool("skipConvert", false, "skip any format-conversion sub-steps this stage would otherwise perform")
	tablePrefix := flag.String("tablePrefix", "pubs", "table name prefix used by the tables and load steps")

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), `Usage of %[1]s:
  $ %[1]s [options] <dataset> <step>
  $ %[1]s [options] <dataset> <fromStep>-<toStep>

Known steps: %[2]s

Options:
`, os.Args[0], strings.Join(steps, " "))
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(2)
	}
	dataset := flag.Arg(0)
	stepArg := flag.Arg(1)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	pc := &pipelineContext{
		cfg:         cfg,
		dataset:     dataset,
		outDir:      pick(*outDir, cfg.OutDir),
		onlyDb:      *onlyDb,
		skipConvert: *skipConvert,
		tablePrefix: *tablePrefix,
	}

	from, to, err := parseStepArg(stepArg)
	if err != nil {
		log.Fatal(err)
	}

	log.Println(os.Args)
	for i := from; i <= to; i++ {
		step := steps[i]
		log.Printf("running step %s", step)
		if err := runStep(pc, step); err != nil {
			log.Fatalf("step %s: %v", step, err)
		}
	}
}

func pick(override, fallback string) string {
	if override != "" {
		return override
	}
	return fallback
}

// parseStepArg parses either a single step name or a "<from>-<to>"
// range, both inclusive, returning their indices into steps.
func parseStepArg(s string) (from, to int, err error) {
	if i := strings.IndexByte(s, '-'); i >= 0 {
		fromName, toName := s[:i], s[i+1:]
		from = stepIndex(fromName)
		to = stepIndex(toName)
		if from < 0 {
			return 0, 0, fmt.Errorf("unknown step %q", fromName)
		}
		if to < 0 {
			return 0, 0, fmt.Errorf("unknown step %q", toName)
		}
		if from > to {
			return 0, 0, fmt.Errorf("range %q runs backwards", s)
		}
		return from, to, nil
	}
	idx := stepIndex(s)
	if idx < 0 {
		return 0, 0, fmt.Errorf("unknown step %q", s)
	}
	return idx, idx, nil
}

func runStep(pc *pipelineContext, step string) error {
	switch step {
	case "annot":
		return runAnnotAll(pc)
	case "annotMarker":
		return runAnnotOne(pc, "markers")
	case "annotSeq":
		if err := runAnnotOne(pc, "dna"); err != nil {
			return err
		}
		return runAnnotOne(pc, "prot")
	case "filter":
		return runFilter(pc)
	case "blat":
		return runBlat(pc)
	case "sort":
		return runSort(pc)
	case "chain":
		return runChain(pc)
	case "identifiers":
		return runIdentifiers(pc)
	case "tables":
		return runTables(pc)
	case "load":
		return runLoad(pc)
	case "dropAll":
		return runDropAll(pc)
	case "switchOver":
		return runSwitchOver(pc)
	case "expFasta":
		return runExpFasta(pc)
	case "expCdr3":
		return runExpCdr3(pc)
	default:
		return fmt.Errorf("unimplemented step %q", step)
	}
}
