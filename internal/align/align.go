// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package align builds and dispatches the aligner jobs that search a
// dataset's filtered sequences against each configured target
// database, for each of the three sequence groups (genome, cDNA,
// protein). The command line is built the same way the teacher builds
// BLAST command lines: a struct tagged with `buildarg` templates,
// executed through github.com/biogo/external.
package align

import (
	"errors"
	"os/exec"
	"strings"

	"github.com/biogo/external"
	"github.com/biogo/hts/fai"

	"github.com/kortschak/pubs/internal/cluster"
	"github.com/kortschak/pubs/internal/psl"
)

// Blat models one invocation of a BLAT-compatible aligner. Field tags
// follow the teacher's blast.Nucleic layout: an optional leading
// command name, then parameters, then positional input/output, then
// ExtraFlags passed through uninterpreted.
type Blat struct {
	Cmd string `buildarg:"{{if .}}{{.}}{{else}}blat{{end}}"` // blat

	MinIdentity int    `buildarg:"{{if .}}-minIdentity={{.}}{{end}}"`
	MinScore    int    `buildarg:"{{if .}}-minScore={{.}}{{end}}"`
	TileSize    int    `buildarg:"{{if .}}-tileSize={{.}}{{end}}"`
	StepSize    int    `buildarg:"{{if .}}-stepSize={{.}}{{end}}"`
	Query       string `buildarg:"{{if .}}-t={{.}}{{end}}"`  // blat -t: database (target) seq type: dna, prot, dnax
	TargetType  string `buildarg:"{{if .}}-q={{.}}{{end}}"`  // blat -q: query seq type: dna, rna, prot, dnax, rnax
	Mask        string `buildarg:"{{if .}}-mask={{.}}{{end}}"`
	QMask       string `buildarg:"{{if .}}-qMask={{.}}{{end}}"`
	NoHead      bool   `buildarg:"{{if .}}-noHead{{end}}"`
	OutFormat   string `buildarg:"{{if .}}-out={{.}}{{end}}"` // psl

	Database string `buildarg:"{{.}}"` // positional: target db/2bit
	Input    string `buildarg:"{{.}}"` // positional: query fasta
	Output   string `buildarg:"{{.}}"` // positional: output psl

	// ExtraFlags is passed through to blat as flags, e.g. the
	// per-seqType-bucket AlignerOpts from internal/config.
	ExtraFlags string
}

// BuildCommand renders b into an *exec.Cmd, the same shape as the
// teacher's blast.Nucleic.BuildCommand.
func (b Blat) BuildCommand() (*exec.Cmd, error) {
	if b.Database == "" {
		return nil, errors.New("blat: missing target database")
	}
	if b.Input == "" {
		return nil, errors.New("blat: missing query input")
	}
	if b.Output == "" {
		return nil, errors.New("blat: missing psl output")
	}
	cl := external.Must(external.Build(b))
	var extra []string
	if b.ExtraFlags != "" {
		extra = strings.Split(b.ExtraFlags, " ")
	}
	return exec.Command(cl[0], append(cl[1:], extra...)...), nil
}

// Group identifies which of the three alignment passes a job belongs
// to.
type Group string

const (
	GenomeGroup  Group = "genome"
	CDNAGroup    Group = "cdna"
	ProteinGroup Group = "prot"
)

func (g Group) seqType() psl.SeqType {
	switch g {
	case CDNAGroup:
		return psl.CDNA
	case ProteinGroup:
		return psl.Protein
	default:
		return psl.Genome
	}
}

// Target is one (db, target 2bit/fasta path) pair a FASTA shard is
// aligned against.
type Target struct {
	DB   string
	Path string
}

// Dispatcher submits one Blat job per (shard, target) pair to a
// cluster.Runner. It mirrors the teacher's runBlastTabular loop over
// libraries, but without BLAST's iterative mask-and-rerun step: BLAT
// is single-pass.
type Dispatcher struct {
	Runner  cluster.Runner
	Opts    string // per-seqType-bucket AlignerOpts (internal/config.SeqTypeOptions)
	NoHead  bool
}

// Submit queues one job per target against queryFASTA, writing PSL
// output to the path outDir returns for the target's db.
func (d Dispatcher) Submit(group Group, queryFASTA string, targets []Target, outDir func(db string) string) {
	for _, tgt := range targets {
		b := Blat{
			Query:      "dna",
			TargetType: groupQueryType(group),
			NoHead:     d.NoHead,
			Database:   tgt.Path,
			Input:      queryFASTA,
			Output:     outDir(tgt.DB),
			ExtraFlags: d.Opts,
		}
		cmd, err := b.BuildCommand()
		var argv []string
		if err == nil {
			argv = cmd.Args
		}
		d.Runner.Submit(cluster.Job{
			Name: tgt.DB + ":" + string(group),
			Argv: argv,
		})
	}
}

func groupQueryType(g Group) string {
	switch g {
	case ProteinGroup:
		return "prot"
	default:
		return "dna"
	}
}

// IndexFor reads the existing faidx index (<fastaPath>.fai) for a
// target FASTA using github.com/biogo/hts/fai. It does not create a
// missing index; reading a missing file returns an error.
func IndexFor(fastaPath string) (fai.Index, error) {
	return fai.ReadFile(fastaPath + ".fai")
}
