// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The pubmap-audit command allows the disk-resident modernc.org/kv
// stores the pipeline creates during a run to be queried directly.
// There are two kinds of store it understands, told apart by name:
//
//   - filter/<kind>Dedup.kv — the SeqFilter per-article duplicate-sequence
//     index (internal/seqfilter.Dedup). One row per (articleId, seq)
//     pair kept by SeqFilter.
//   - chain/<db>.staging.kv — a chain engine per-db alignment staging
//     index (internal/chain.StagingIndex). One row per staged psl
//     record, in target-position order. The chain step removes this
//     file when it finishes with the db.
//
// Output is a JSON stream on stdout, one object per row.
package main

import (
	"encoding/json"
	"flag"
	"io"
	"log"
	"os"
	"strings"

	"modernc.org/kv"

	"github.com/kortschak/pubs/internal/psl"
	"github.com/kortschak/pubs/internal/seqfilter"
	"github.com/kortschak/pubs/internal/store"
)

func main() {
	path := flag.String("db", "", "specify db file to audit (name must end in 'Dedup.kv' or '.staging.kv')")
	flag.Parse()
	if *path == "" {
		flag.Usage()
		os.Exit(2)
	}

	enc := json.NewEncoder(os.Stdout)

	switch {
	case strings.HasSuffix(*path, "Dedup.kv"):
		if err := auditDedup(enc, *path); err != nil {
			log.Fatal(err)
		}
	case strings.HasSuffix(*path, ".staging.kv"):
		if err := auditStage(enc, *path); err != nil {
			log.Fatal(err)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
}

type seenRow struct {
	ArticleID uint64 `json:"articleId"`
	Seq       string `json:"seq"`
}

// auditDedup walks a SeqFilter Dedup store and emits one seenRow per
// recorded (articleId, seq) pair.
func auditDedup(enc *json.Encoder, path string) error {
	db, err := kv.Open(path, &kv.Options{Compare: seqfilter.ByArticleAndSeq})
	if err != nil {
		return err
	}
	defer db.Close()

	it, err := db.SeekFirst()
	if err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	for {
		k, _, err := it.Next()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		articleID, seq := seqfilter.UnmarshalSeenKey(k)
		if err := enc.Encode(seenRow{ArticleID: articleID, Seq: seq}); err != nil {
			return err
		}
	}
}

// auditStage walks a chain engine StagingIndex store and emits the
// decoded psl record for each staged row.
func auditStage(enc *json.Encoder, path string) error {
	db, err := kv.Open(path, &kv.Options{Compare: store.ByTargetPosition})
	if err != nil {
		return err
	}
	defer db.Close()

	it, err := db.SeekFirst()
	if err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	for {
		_, v, err := it.Next()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		r, err := psl.ParseRecord(strings.TrimRight(string(v), "\n"))
		if err != nil {
			return err
		}
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
}
