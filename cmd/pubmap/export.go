// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	expkg "github.com/kortschak/pubs/internal/export"
)

// runExpFasta drives the "expFasta" step (spec.md §4.10): dump every
// filtered protein sequence annotation in the current batch to a
// single plain FASTA file under the batch's export directory.
func runExpFasta(pc *pipelineContext) error {
	return runExport(pc, "proteins.fa", nil)
}

// runExpCdr3 drives the "expCdr3" step: the same dump, but with a
// best-effort CDR3 region call appended to each record's description.
func runExpCdr3(pc *pipelineContext) error {
	return runExport(pc, "proteins.cdr3.fa", findCDR3)
}

func runExport(pc *pipelineContext, name string, find expkg.CDR3Finder) error {
	b, err := pc.currentBatch()
	if err != nil {
		return err
	}
	pm := pc.pathModel(b)

	shards, err := filteredSeqShards(pm.SeqDir("prot"))
	if err != nil {
		return err
	}

	expDir := filepath.Join(pm.Batch.Dir, "export")
	if err := os.MkdirAll(expDir, 0o755); err != nil {
		return err
	}
	out, err := os.Create(filepath.Join(expDir, name))
	if err != nil {
		return err
	}
	defer out.Close()

	for _, shard := range shards {
		f, err := os.Open(shard)
		if err != nil {
			return err
		}
		var werr error
		if find == nil {
			_, werr = expkg.WriteFasta(out, f)
		} else {
			_, werr = expkg.WriteCDR3Fasta(out, f, find)
		}
		f.Close()
		if werr != nil {
			return werr
		}
	}
	return nil
}

// filteredSeqShards lists the plain (uncompressed) per-shard .tab
// files SeqFilter wrote under the batch's filter/<kind>Tab directory.
func filteredSeqShards(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".tab") {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out, nil
}

// cdr3Pattern matches the conserved cysteine-to-tryptophan span
// bracketing most immunoglobulin/TCR CDR3 loops (YYC...WGxG), a
// coarse heuristic adequate for flagging candidate regions in export
// output, not a replacement for a proper germline-anchored caller.
var cdr3Pattern = regexp.MustCompile(`C[A-Z]{3,30}W[AG].G`)

func findCDR3(seq string) (string, bool) {
	loc := cdr3Pattern.FindString(seq)
	if loc == "" {
		return "", false
	}
	return loc, true
}
