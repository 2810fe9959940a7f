// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// pubmap-diff compares the chain-engine BED output of two runs (for
// example, across batches, or before and after a chain-engine change).
// It reports, per base, how much of the two BED sets agree on feature
// name and on joined marker/gene names, and emits the counts as a JSON
// object on stdout. If a dot flag is given, the disagreements are also
// written as a weighted graph in DOT format, one node per distinct
// name per file, edges weighted by the number of disagreeing bases.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/biogo/store/step"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/simple"
)

func main() {
	aFile := flag.String("a", "", "specify the first bed file name (required)")
	bFile := flag.String("b", "", "specify the second bed file name (required)")
	out := flag.String("dot", "", "specify prefix for DOT files describing disagreements")
	none := flag.String("none", "none", "specify label for 'no feature'")

	flag.Parse()
	if *aFile == "" || *bFile == "" {
		flag.Usage()
		os.Exit(2)
	}

	chrs := make(map[string]bool)
	names := make(map[string]*step.Vector)
	markers := make(map[string]*step.Vector)

	if err := steps(*aFile, func(f bedRecord) error {
		chrs[f.chrom] = true
		return applyFields(names, markers, f, true)
	}); err != nil {
		log.Fatal(err)
	}
	if err := steps(*bFile, func(f bedRecord) error {
		chrs[f.chrom] = true
		return applyFields(names, markers, f, false)
	}); err != nil {
		log.Fatal(err)
	}

	var chroms []string
	for c := range chrs {
		chroms = append(chroms, c)
	}
	sort.Strings(chroms)

	markerReport, markerMismatches := tally(chroms, markers)
	nameReport, nameMismatches := tally(chroms, names)

	type report struct {
		Name   record `json:"name"`
		Marker record `json:"marker"`
	}
	m, err := json.Marshal(report{Name: nameReport, Marker: markerReport})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%s\n", m)

	if *out != "" {
		if err := dotOut(*out+".name.dot", *aFile, *bFile, nameMismatches, *none); err != nil {
			log.Fatal(err)
		}
		if err := dotOut(*out+".marker.dot", *aFile, *bFile, markerMismatches, *none); err != nil {
			log.Fatal(err)
		}
	}
}

type bedRecord struct {
	chrom       string
	start, end  int
	name        string
	markerNames string
}

// steps reads the tab-separated bedx lines of path, calling fn for
// each well-formed record.
func steps(path string, fn func(bedRecord) error) error {
	fh, err := os.Open(path)
	if err != nil {
		return err
	}
	defer fh.Close()

	sc := bufio.NewScanner(fh)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 4 {
			log.Printf("%s: skipping malformed line: %q", path, line)
			continue
		}
		start, err := strconv.Atoi(fields[1])
		if err != nil {
			log.Printf("%s: skipping malformed line: %q", path, line)
			continue
		}
		end, err := strconv.Atoi(fields[2])
		if err != nil {
			log.Printf("%s: skipping malformed line: %q", path, line)
			continue
		}
		rec := bedRecord{chrom: fields[0], start: start, end: end, name: fields[3]}
		if len(fields) >= 14 {
			rec.markerNames = fields[13]
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return sc.Err()
}

func applyFields(names, markers map[string]*step.Vector, f bedRecord, isA bool) error {
	if err := apply(names, f.chrom, f.start, f.end, f.name, isA); err != nil {
		return err
	}
	return apply(markers, f.chrom, f.start, f.end, f.markerNames, isA)
}

func apply(vecs map[string]*step.Vector, chrom string, start, end int, val string, isA bool) error {
	v, ok := vecs[chrom]
	if !ok {
		var err error
		v, err = step.New(0, 1, pair{})
		if err != nil {
			return err
		}
		v.Relaxed = true
		vecs[chrom] = v
	}
	return v.ApplyRange(start, end, func(e step.Equaler) step.Equaler {
		p := e.(pair)
		if isA {
			p.a = val
		} else {
			p.b = val
		}
		return p
	})
}

type record struct {
	Agree    int `json:"agree"`
	AMissing int `json:"a-missing"`
	BMissing int `json:"b-missing"`
	Mismatch int `json:"mismatch"`
}

func tally(chroms []string, vecs map[string]*step.Vector) (record, map[names]int) {
	var r record
	mismatches := make(map[names]int)
	for _, chr := range chroms {
		v, ok := vecs[chr]
		if !ok {
			continue
		}
		v.Do(func(start, end int, e step.Equaler) {
			p := e.(pair)
			if p.isZero() {
				return
			}
			length := end - start
			switch {
			case p.a == p.b:
				r.Agree += length
			case p.a == "":
				r.AMissing += length
				mismatches[names{a: "", b: p.b}] += length
			case p.b == "":
				r.BMissing += length
				mismatches[names{a: p.a, b: ""}] += length
			default:
				r.Mismatch += length
				mismatches[p.names] += length
			}
		})
	}
	return r, mismatches
}

// pair is a step vector element holding the feature/marker name from
// each of the two compared files over one base range.
type pair struct {
	names
}

type names struct {
	a, b string
}

func (p pair) isZero() bool { return p.names == names{} }

func (p pair) Equal(e step.Equaler) bool {
	return p.names == e.(pair).names
}

func dotOut(path, aFile, bFile string, edges map[names]int, none string) error {
	g := newNameGraph(none)
	for p, w := range edges {
		e := edge{
			f: g.nodeFor(aFile, p.a),
			t: g.nodeFor(bFile, p.b),
			w: float64(w),
		}
		g.SetWeightedEdge(e)
	}
	b, err := dot.Marshal(g, "discord", "", "\t")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o664)
}

type nameGraph struct {
	*simple.WeightedUndirectedGraph
	idFor map[string]int64
	none  string
}

func newNameGraph(none string) nameGraph {
	return nameGraph{
		WeightedUndirectedGraph: simple.NewWeightedUndirectedGraph(0, 0),
		idFor:                   make(map[string]int64),
		none:                    none,
	}
}

func (g nameGraph) nodeFor(file, s string) graph.Node {
	if s == "" {
		s = g.none
	}
	s = file + ":" + s
	id, ok := g.idFor[s]
	if ok {
		return g.Node(id)
	}
	id = g.WeightedUndirectedGraph.NewNode().ID()
	g.idFor[s] = id
	n := node{id: id, name: s}
	g.AddNode(n)
	return n
}

type node struct {
	id   int64
	name string
}

func (n node) ID() int64     { return n.id }
func (n node) DOTID() string { return n.name }

type edge struct {
	f, t graph.Node
	w    float64
}

func (e edge) From() graph.Node         { return e.f }
func (e edge) To() graph.Node           { return e.t }
func (e edge) ReversedEdge() graph.Edge { return edge{f: e.t, t: e.f, w: e.w} }
func (e edge) Weight() float64          { return e.w }
func (e edge) Attributes() []encoding.Attribute {
	return []encoding.Attribute{{Key: "weight", Value: fmt.Sprint(e.w)}}
}
