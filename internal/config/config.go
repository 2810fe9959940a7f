// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config holds the process-wide constants that drive a pubmap
// pipeline run and the PipelineContext value threaded through every
// component in place of dataset-as-global state.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// SeqTypeOptions holds the aligner and filter option strings used for
// one fasta size bucket ("short" or "long").
type SeqTypeOptions struct {
	AlignerOpts string `json:"alignerOpts"`
	FilterOpts  string `json:"filterOpts"`
}

// Config is the process-wide set of constants supplied by configuration.
// Every field corresponds to a named constant in spec.md §6.
type Config struct {
	ArticleDigits int `json:"articleDigits"`
	FileDigits    int `json:"fileDigits"`
	AnnotDigits   int `json:"annotDigits"`

	MinSeqLen     int `json:"minSeqLen"`
	MaxSeqLen     int `json:"maxSeqLen"`
	MinProtSeqLen int `json:"minProtSeqLen"`

	ShortSeqCutoff   int `json:"shortSeqCutoff"`
	QueryFaSplitSize int `json:"queryFaSplitSize"`

	// MaxFastaShardSize maps a SeqFilter size bucket ("short"/"long") to
	// the cumulative nucleotide count a FASTA shard may reach before
	// rolling over at the next article boundary (spec.md §4.4's
	// maxSizes[bucket]). Falls back to QueryFaSplitSize for any bucket
	// left unset.
	MaxFastaShardSize map[string]int `json:"maxFastaShardSize"`

	CdnaFaSplitSizes map[string]int `json:"cdnaFaSplitSizes"`

	// MaxChainDist maps db -> max target-space distance between
	// consecutive alignments in a chain. The "default" key supplies
	// the fallback used when a db has no specific entry.
	MaxChainDist map[string]int `json:"maxChainDist"`

	MinChainCoverage int `json:"minChainCoverage"`
	MaxChainLength   int `json:"maxChainLength"`
	MaxFeatures      int `json:"maxFeatures"`
	MaxDbMatchCount  int `json:"maxDbMatchCount"`

	ChunkArticleCount int `json:"chunkArticleCount"`
	ChunkDivider      int `json:"chunkDivider"`

	DefaultGenomes   []string `json:"defaultGenomes"`
	AlwaysUseGenomes []string `json:"alwaysUseGenomes"`
	AlignGenomeOrder []string `json:"alignGenomeOrder"`

	SpeciesNames map[string]string `json:"speciesNames"`

	SeqTypeOptions map[string]SeqTypeOptions `json:"seqTypeOptions"`
	ProtBlatOptions string                   `json:"protBlatOptions"`

	// AnnotatorOffsets maps annotator name ("dna", "prot", "markers")
	// to its base offset within an annotId.
	AnnotatorOffsets map[string]int64 `json:"annotatorOffsets"`

	// SpecDatasetAnnotIdOffset maps dataset name to a per-dataset
	// offset added on top of the annotator offset.
	SpecDatasetAnnotIdOffset map[string]int64 `json:"specDatasetAnnotIdOffset"`

	// GenomeDir holds one 2bit (or indexed FASTA) file per db named
	// "<db>.2bit" under it, the alignment target for the genome group.
	GenomeDir string `json:"genomeDir"`

	CdnaDir  string `json:"cdnaDir"`
	LociDir  string `json:"lociDir"`
	SQLDir   string `json:"sqlDir"`
	TextRoot string `json:"textRoot"`

	// OutDir is the default pipeline output root (<outDir> in spec.md's
	// filesystem layout), overridable per-invocation by the CLI's
	// --outDir flag.
	OutDir string `json:"outDir"`

	// DBPath is the data source name for the loader's tracking-table
	// database (internal/loader, database/sql + modernc.org/sqlite).
	DBPath string `json:"dbPath"`
}

// ConfigError reports a configuration problem detected at load time:
// an unresolved dataset, a missing directory, or a malformed constant.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "pubmap: config error: " + e.Reason }

// Load reads a JSON configuration file and validates it.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("cannot open %s: %v", path, err)}
	}
	defer f.Close()

	var c Config
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("malformed config %s: %v", path, err)}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the invariants relied on by internal/annotid and the
// per-dataset offset scheme, returning a *ConfigError on violation.
func (c *Config) Validate() error {
	if c.ArticleDigits <= 0 || c.FileDigits <= 0 || c.AnnotDigits <= 0 {
		return &ConfigError{Reason: "articleDigits, fileDigits and annotDigits must all be positive"}
	}
	total := c.ArticleDigits + c.FileDigits + c.AnnotDigits
	if total > 18 {
		return &ConfigError{Reason: fmt.Sprintf(
			"articleDigits+fileDigits+annotDigits = %d exceeds 18; the composite annotId would not fit in an unsigned 64-bit integer", total)}
	}
	if _, ok := c.MaxChainDist["default"]; !ok {
		return &ConfigError{Reason: `maxChainDist must contain a "default" entry`}
	}

	// Per-dataset offsets must not collide with any annotator offset,
	// and no two datasets' combined (annotator + dataset) offset ranges
	// may overlap within the space left for local annotation indices.
	localSpan := pow10(c.AnnotDigits)
	seen := make(map[int64]string)
	for ds, dsOff := range c.SpecDatasetAnnotIdOffset {
		for annotator, annOff := range c.AnnotatorOffsets {
			base := dsOff + annOff
			for prevBase, prevLabel := range seen {
				if base == prevBase {
					return &ConfigError{Reason: fmt.Sprintf(
						"dataset %q annotator %q offset %d collides with %s", ds, annotator, base, prevLabel)}
				}
				if abs64(base-prevBase) < localSpan {
					return &ConfigError{Reason: fmt.Sprintf(
						"dataset %q annotator %q offset %d is within one annotDigits span of %s; annotIds would overlap",
						ds, annotator, base, prevLabel)}
				}
			}
			seen[base] = fmt.Sprintf("dataset %q annotator %q", ds, annotator)
		}
	}
	return nil
}

func pow10(n int) int64 {
	r := int64(1)
	for i := 0; i < n; i++ {
		r *= 10
	}
	return r
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

// MaxDistFor returns the configured maxChainDist for db, falling back
// to the "default" entry.
func (c *Config) MaxDistFor(db string) int {
	if d, ok := c.MaxChainDist[db]; ok {
		return d
	}
	return c.MaxChainDist["default"]
}

// FastaShardSizeFor returns the configured rollover size for bucket
// ("short" or "long"), falling back to QueryFaSplitSize when the
// bucket has no specific entry.
func (c *Config) FastaShardSizeFor(bucket string) int {
	if n, ok := c.MaxFastaShardSize[bucket]; ok {
		return n
	}
	return c.QueryFaSplitSize
}

// PipelineContext is the explicit, non-global value threaded through
// every component of one pipeline invocation: the resolved
// configuration plus the dataset and output root it is operating on.
type PipelineContext struct {
	Cfg     *Config
	Dataset string
	OutDir  string

	// TablePrefix overrides the default "pubs" table prefix (CLI
	// --tablePrefix), e.g. "pubsDev" for a staging load.
	TablePrefix string

	// OnlyDb restricts a step to a single target database when set.
	OnlyDb string

	// SkipConvert skips any format-conversion sub-steps a stage would
	// otherwise perform (CLI --skipConvert).
	SkipConvert bool
}

// DatasetDir returns <outDir>/<dataset>.
func (p *PipelineContext) DatasetDir() string {
	return p.OutDir + "/" + p.Dataset
}
