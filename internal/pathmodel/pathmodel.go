// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pathmodel lays out the on-disk directory structure of one
// dataset's batch sequence and tracks per-batch progress through the
// created -> annot -> filter -> blat -> sort -> chain -> identifiers ->
// tables state machine. It is the explicit value-type replacement for
// the teacher's dataset-as-global PipelineConfig.
package pathmodel

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// BatchState names one step in the pipeline's progress flag sequence.
// The order here is the order batches must pass through; a flag file
// named after a state marks that state complete.
type BatchState string

const (
	StateCreated     BatchState = "created"
	StateAnnot       BatchState = "annot"
	StateFilter      BatchState = "filter"
	StateBlat        BatchState = "blat"
	StateSort        BatchState = "sort"
	StateChain       BatchState = "chain"
	StateIdentifiers BatchState = "identifiers"
	StateTables      BatchState = "tables"
)

// states is the canonical ordering used by IsPast and NextState.
var states = []BatchState{
	StateCreated, StateAnnot, StateFilter, StateBlat,
	StateSort, StateChain, StateIdentifiers, StateTables,
}

func stateIndex(s BatchState) int {
	for i, st := range states {
		if st == s {
			return i
		}
	}
	return -1
}

// Batch is one pipeline run for a dataset, rooted at
// <outDir>/<dataset>/batches/<id>.
type Batch struct {
	ID  int
	Dir string
}

// PathModel computes every input/output directory a pipeline stage
// needs, relative to one batch, replacing the field-per-directory
// global of the teacher's ancestor. Unlike that ancestor, PathModel
// carries no mutable state of its own; it is pure path arithmetic over
// Dataset/OutDir/Batch.
type PathModel struct {
	Dataset string
	OutDir  string
	Batch   Batch
}

// DatasetDir is <outDir>/<dataset>.
func (p PathModel) DatasetDir() string { return filepath.Join(p.OutDir, p.Dataset) }

// BatchesDir is <outDir>/<dataset>/batches.
func (p PathModel) BatchesDir() string { return filepath.Join(p.DatasetDir(), "batches") }

// ProgressDir holds one flag file per completed BatchState.
func (p PathModel) ProgressDir() string { return filepath.Join(p.Batch.Dir, "progress") }

// UpdateIDFile lists the text-update identifiers folded into this batch.
func (p PathModel) UpdateIDFile() string { return filepath.Join(p.Batch.Dir, "updateIds.txt") }

// ChunkListFile lists the text chunk files annotated in this batch.
func (p PathModel) ChunkListFile() string {
	return filepath.Join(p.Batch.Dir, "annotatedTextChunks.tab")
}

// AnnotDir is <batch>/annots/<kind> for kind in {dna,prot,markers}.
func (p PathModel) AnnotDir(kind string) string {
	return filepath.Join(p.Batch.Dir, "annots", kind)
}

// TableDir holds the genome-browser-ready tables for this batch.
func (p PathModel) TableDir() string { return filepath.Join(p.Batch.Dir, "tables") }

// SeqDir holds per-article deduplicated sequences; protein and DNA
// use distinct subdirectories under the "filter" stage.
func (p PathModel) SeqDir(kind string) string {
	return filepath.Join(p.Batch.Dir, "filter", kind+"Tab")
}

// FastaDir holds the per-target-genome FASTA shards fed to the aligner.
func (p PathModel) FastaDir(kind string) string {
	return filepath.Join(p.Batch.Dir, "filter", kind+"Fasta")
}

// BlatDir holds raw aligner output for one seqType group
// ("genome", "cdna", "prot").
func (p PathModel) BlatDir(group string) string {
	return filepath.Join(p.Batch.Dir, "blat", group)
}

// SortDir holds the sorted/lifted alignment output for one group.
func (p PathModel) SortDir(group string) string {
	return filepath.Join(p.Batch.Dir, "sort", group)
}

// ChainDir holds the chain engine's split-by-article working files for
// one group.
func (p PathModel) ChainDir(group string) string {
	return filepath.Join(p.Batch.Dir, "chain", group)
}

// BedDir holds the final chained, sorted bedx output.
func (p PathModel) BedDir() string { return filepath.Join(p.Batch.Dir, "bed") }

// FindCurrentBatch finds the highest batch id that has not yet
// completed the tables step, the resumption point a run should
// continue from. If every batch has completed tables, the highest batch
// is returned. It returns ok=false if no batch directory exists yet.
func FindCurrentBatch(outDir, dataset string) (b Batch, ok bool, err error) {
	base := filepath.Join(outDir, dataset, "batches")
	ids, err := batchIDs(base)
	if err != nil {
		if os.IsNotExist(err) {
			return Batch{}, false, nil
		}
		return Batch{}, false, err
	}
	if len(ids) == 0 {
		return Batch{}, false, nil
	}

	chosen := ids[len(ids)-1]
	for i := len(ids) - 1; i >= 0; i-- {
		dir := filepath.Join(base, strconv.Itoa(ids[i]))
		past, err := IsPast(dir, StateTables)
		if err != nil {
			return Batch{}, false, err
		}
		if !past {
			chosen = ids[i]
			break
		}
	}
	return Batch{ID: chosen, Dir: filepath.Join(base, strconv.Itoa(chosen))}, true, nil
}

// NewBatch creates the next batch directory after the highest existing
// one (or batch 0 if none exist), failing with *InUseError if that
// directory already exists and is non-empty, or *InProgressError if
// the highest existing batch has started annotation but not yet
// reached StateTables (spec.md §4.1).
func NewBatch(outDir, dataset string) (Batch, error) {
	base := filepath.Join(outDir, dataset, "batches")
	ids, err := batchIDs(base)
	if err != nil && !os.IsNotExist(err) {
		return Batch{}, err
	}
	next := 0
	if len(ids) > 0 {
		highest := ids[len(ids)-1]
		highestDir := filepath.Join(base, strconv.Itoa(highest))
		pastAnnot, err := IsPast(highestDir, StateAnnot)
		if err != nil {
			return Batch{}, err
		}
		pastTables, err := IsPast(highestDir, StateTables)
		if err != nil {
			return Batch{}, err
		}
		if pastAnnot && !pastTables {
			return Batch{}, &InProgressError{Reason: fmt.Sprintf(
				"batch %d has started annotation but not completed tables; complete or delete it first", highest)}
		}
		next = highest + 1
	}
	dir := filepath.Join(base, strconv.Itoa(next))
	entries, err := os.ReadDir(dir)
	if err == nil && len(entries) != 0 {
		return Batch{}, &InUseError{Reason: dir + " already exists and is not empty"}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Batch{}, err
	}
	return Batch{ID: next, Dir: dir}, nil
}

// InconsistentStateError reports that the on-disk batch layout
// contradicts what the pipeline expects to find, per the error
// taxonomy's InconsistentState category.
type InconsistentStateError struct {
	Reason string
}

func (e *InconsistentStateError) Error() string { return "pathmodel: " + e.Reason }

func batchIDs(base string) ([]int, error) {
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil, err
	}
	var ids []int
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if n, err := strconv.Atoi(e.Name()); err == nil {
			ids = append(ids, n)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

// IsPast reports whether the batch rooted at dir has completed state,
// by checking for a flag file named after it under dir/progress.
func IsPast(dir string, state BatchState) (bool, error) {
	_, err := os.Stat(filepath.Join(dir, "progress", string(state)))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// MarkComplete records that state has been completed for this batch by
// creating its progress flag file.
func (p PathModel) MarkComplete(state BatchState) error {
	if err := os.MkdirAll(p.ProgressDir(), 0o755); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(p.ProgressDir(), string(state)))
	if err != nil {
		return err
	}
	return f.Close()
}

// CompletedStates returns the states this batch has recorded as
// complete, in pipeline order.
func (p PathModel) CompletedStates() ([]BatchState, error) {
	entries, err := os.ReadDir(p.ProgressDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	done := make(map[string]bool, len(entries))
	for _, e := range entries {
		done[e.Name()] = true
	}
	var out []BatchState
	for _, s := range states {
		if done[string(s)] {
			out = append(out, s)
		}
	}
	return out, nil
}

// NextState returns the state following the last one recorded as
// complete for this batch.
func (p PathModel) NextState() (BatchState, error) {
	done, err := p.CompletedStates()
	if err != nil {
		return "", err
	}
	if len(done) == 0 {
		return states[0], nil
	}
	idx := stateIndex(done[len(done)-1])
	if idx < 0 || idx == len(states)-1 {
		return "", &InconsistentStateError{Reason: "batch has already completed every known state"}
	}
	return states[idx+1], nil
}

// BatchesAtStep returns, ascending by numeric id, every batch for
// dataset that has completed state.
func BatchesAtStep(outDir, dataset string, state BatchState) ([]int, error) {
	base := filepath.Join(outDir, dataset, "batches")
	ids, err := batchIDs(base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []int
	for _, id := range ids {
		past, err := IsPast(filepath.Join(base, strconv.Itoa(id)), state)
		if err != nil {
			return nil, err
		}
		if past {
			out = append(out, id)
		}
	}
	return out, nil
}

// UnannotatedUpdateIds returns the updateIds in allUpdateIDs that are
// not yet recorded in any batch past StateAnnot, i.e. the corpus slices
// a fresh annotation run still needs to consume.
func UnannotatedUpdateIds(outDir, dataset string, allUpdateIDs []string) ([]string, error) {
	annotated, err := BatchesAtStep(outDir, dataset, StateAnnot)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	base := filepath.Join(outDir, dataset, "batches")
	for _, id := range annotated {
		ids, err := ReadList(filepath.Join(base, strconv.Itoa(id), "updateIds.txt"))
		if err != nil {
			return nil, err
		}
		for _, u := range ids {
			seen[u] = true
		}
	}
	var out []string
	for _, u := range allUpdateIDs {
		if !seen[u] {
			out = append(out, u)
		}
	}
	return out, nil
}

// InUseError reports that NewBatch's target directory already exists
// and is non-empty, per spec.md §4.1.
type InUseError struct {
	Reason string
}

func (e *InUseError) Error() string { return "pathmodel: in use: " + e.Reason }

// InProgressError reports that the highest-numbered batch has started
// annotation but not yet reached StateTables, so a new batch cannot be
// created until the operator completes or deletes it (spec.md §4.1).
type InProgressError struct {
	Reason string
}

func (e *InProgressError) Error() string { return "pathmodel: in progress: " + e.Reason }

// ReadList reads a newline-delimited identifier list, skipping blank
// lines, mirroring the teacher ancestor's readList helper.
func ReadList(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out, nil
}

// WriteList writes a newline-delimited identifier list, overwriting
// any existing file.
func WriteList(path string, ids []string) error {
	return os.WriteFile(path, []byte(strings.Join(ids, "\n")+"\n"), 0o644)
}
