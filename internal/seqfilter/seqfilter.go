// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package seqfilter implements the per-article deduplication and
// length filter applied to recognized sequences before alignment, and
// the FASTA shard writer that turns the filtered sequences into the
// aligner's input files.
package seqfilter

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"modernc.org/kv"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/seq/linear"

	"github.com/kortschak/pubs/internal/annotation"
)

var order = binary.BigEndian

// ByArticleAndSeq orders dedup-store keys by (articleId, sequence
// bytes), the same fixed-width-prefix-then-bytes key marshaling idiom
// as the teacher's store.MarshalBlastRecordKey.
func ByArticleAndSeq(x, y []byte) int { return bytes.Compare(x, y) }

// UnmarshalSeenKey decodes a dedup-store key produced by
// marshalSeenKey, for operator tooling (cmd/pubmap-audit) that needs to
// inspect a Dedup store's contents without going through Seen.
func UnmarshalSeenKey(key []byte) (articleID uint64, seq string) {
	return order.Uint64(key[:8]), string(key[8:])
}

func marshalSeenKey(articleID uint64, seq string) []byte {
	var buf bytes.Buffer
	var b [8]byte
	order.PutUint64(b[:], articleID)
	buf.Write(b[:])
	buf.WriteString(seq)
	return buf.Bytes()
}

// Dedup tracks, per article, which sequences have already been kept.
// It is backed by a disk-resident kv.DB so a pipeline run does not hold
// every sequence for a batch in memory at once, mirroring the
// teacher's regions.db/forward.db usage in cmd/ins/blast.go.
type Dedup struct {
	db      *kv.DB
	n       int
	inBatch bool
}

const dedupBatch = 100

// OpenDedup creates (or truncates) a dedup store at path.
func OpenDedup(path string) (*Dedup, error) {
	db, err := kv.Create(path, &kv.Options{Compare: ByArticleAndSeq})
	if err != nil {
		return nil, err
	}
	return &Dedup{db: db}, nil
}

// Close flushes any open transaction and closes the store.
func (d *Dedup) Close() error {
	if d.inBatch {
		if err := d.db.Commit(); err != nil {
			d.db.Close()
			return err
		}
	}
	return d.db.Close()
}

// Seen reports whether seq has already been recorded for articleID,
// recording it if not. Every dedupBatch calls are grouped into one kv
// transaction, the same batching the teacher uses around hits.Set in
// runBlastTabular.
func (d *Dedup) Seen(articleID uint64, seq string) (bool, error) {
	key := marshalSeenKey(articleID, seq)
	v, err := d.db.Get(nil, key)
	if err != nil {
		return false, err
	}
	if v != nil {
		return true, nil
	}

	if d.n%dedupBatch == 0 {
		if err := d.db.BeginTransaction(); err != nil {
			return false, err
		}
		d.inBatch = true
	}
	if err := d.db.Set(key, []byte{1}); err != nil {
		return false, err
	}
	d.n++
	if d.n%dedupBatch == 0 {
		if err := d.db.Commit(); err != nil {
			return false, err
		}
		d.inBatch = false
	}
	return false, nil
}

// Filter drops duplicate and out-of-length-range sequences from the
// annotation stream read from src, writing the surviving rows to dst.
// minLen/maxLen are inclusive bounds (internal/config's
// MinSeqLen/MaxSeqLen or MinProtSeqLen/MaxSeqLen).
func Filter(dst io.Writer, src io.Reader, dedup *Dedup, annotIDToArticle func(uint64) uint64, minLen, maxLen int) (kept, dropped int, err error) {
	sc, err := annotation.NewSeqScanner(src)
	if err != nil {
		return 0, 0, err
	}
	w := annotation.NewSeqWriter(dst)
	for sc.Scan() {
		a := sc.Record()
		n := len(a.Seq)
		if n < minLen || n > maxLen {
			dropped++
			continue
		}
		articleID := annotIDToArticle(a.AnnotID)
		seen, err := dedup.Seen(articleID, a.Seq)
		if err != nil {
			return kept, dropped, err
		}
		if seen {
			dropped++
			continue
		}
		if err := w.Write(a); err != nil {
			return kept, dropped, err
		}
		kept++
	}
	if err := sc.Err(); err != nil {
		// Malformed rows (DataErrors) were skipped by the scanner
		// and are not reported; only an I/O failure from the
		// underlying reader is propagated.
		if _, ok := err.(*annotation.DataError); !ok {
			return kept, dropped, err
		}
	}
	return kept, dropped, nil
}

// FastaShardWriter writes a sequence of annotations as FASTA records,
// rolling over to a new shard file whenever the sequences written to the
// current shard reach maxSize nucleotides, but never splitting an article's sequences across two
// shards. It mirrors the teacher's fragment.go split() use of the
// biogo FASTA "%60a" writer verb.
type FastaShardWriter struct {
	newShard func(shardIndex int) (io.WriteCloser, error)
	maxSize  int

	cur        io.WriteCloser
	shardIndex int
	curSize    int
	curArticle uint64
	haveShard  bool
}

// NewFastaShardWriter returns a FastaShardWriter. newShard is called to
// obtain the writer for each new shard, numbered from 0.
func NewFastaShardWriter(maxSize int, newShard func(shardIndex int) (io.WriteCloser, error)) *FastaShardWriter {
	return &FastaShardWriter{newShard: newShard, maxSize: maxSize}
}

// WriteSeq writes one sequence belonging to articleID, rolling shards
// as needed. id and desc become the FASTA record's id/description
// fields.
func (f *FastaShardWriter) WriteSeq(articleID uint64, id, desc, seq string) error {
	needRollover := !f.haveShard || (f.curSize >= f.maxSize && f.curArticle != articleID)
	if needRollover {
		if f.cur != nil {
			if err := f.cur.Close(); err != nil {
				return err
			}
		}
		if err := f.rollover(); err != nil {
			return err
		}
		f.haveShard = true
	}
	f.curArticle = articleID

	s := linear.NewSeq(id, alphabet.BytesToLetters([]byte(seq)), alphabet.DNA)
	s.Desc = desc
	var buf bytes.Buffer
	if _, err := fmt.Fprintf(&buf, "%60a\n", s); err != nil {
		return err
	}
	if _, err := f.cur.Write(buf.Bytes()); err != nil {
		return err
	}
	f.curSize += len(seq)
	return nil
}

func (f *FastaShardWriter) rollover() error {
	w, err := f.newShard(f.shardIndex)
	if err != nil {
		return err
	}
	f.cur = w
	f.shardIndex++
	f.curSize = 0
	return nil
}

// Close closes the current shard, if any.
func (f *FastaShardWriter) Close() error {
	if f.cur == nil {
		return nil
	}
	return f.cur.Close()
}

// TargetDBs computes the target db set for one annotation, per
// spec.md §4.4: rows that carry explicit db hints align against that
// set plus alwaysUseGenomes; rows with no hints fall back to
// defaultGenomes.
func TargetDBs(a annotation.SeqAnnotation, defaultGenomes, alwaysUseGenomes []string) []string {
	if len(a.Dbs) == 0 {
		return defaultGenomes
	}
	seen := make(map[string]bool, len(a.Dbs)+len(alwaysUseGenomes))
	var out []string
	for _, db := range a.Dbs {
		if !seen[db] {
			seen[db] = true
			out = append(out, db)
		}
	}
	for _, db := range alwaysUseGenomes {
		if !seen[db] {
			seen[db] = true
			out = append(out, db)
		}
	}
	return out
}

// AcceptProtein reports whether a protein-search row passes the
// prefix/suffix context filter, per spec.md §4.4: only rows accepted
// on both flanks are emitted to the protein FASTA shards.
func AcceptProtein(a annotation.SeqAnnotation) bool {
	return a.PrefixFilterAccept == "Y" && a.SuffixFilterAccept == "Y"
}

// Bucket names the size class a sequence's FASTA record is routed to.
type Bucket string

const (
	Short Bucket = "short"
	Long  Bucket = "long"
)

// BucketFor classifies a sequence by length against shortSeqCutoff.
func BucketFor(seqLen, shortSeqCutoff int) Bucket {
	if seqLen <= shortSeqCutoff {
		return Short
	}
	return Long
}

// dbBucketKey identifies one (db, size-bucket) FASTA shard stream.
type dbBucketKey struct {
	db     string
	bucket Bucket
}

// ShardRouter fans filtered sequences out across one FastaShardWriter
// per (db, bucket) pair, each with its own size-capped rollover, per
// spec.md §4.4's "one directory per db, two size buckets" layout.
type ShardRouter struct {
	maxSizes map[Bucket]int
	newShard func(db string, bucket Bucket, shardIndex int) (io.WriteCloser, error)

	writers map[dbBucketKey]*FastaShardWriter
}

// NewShardRouter returns a ShardRouter. maxSizes supplies the
// cumulative-nucleotide-count rollover threshold per bucket
// (internal/config's maxSizes map); newShard opens the backing file
// for a given (db, bucket, shard index).
func NewShardRouter(maxSizes map[Bucket]int, newShard func(db string, bucket Bucket, shardIndex int) (io.WriteCloser, error)) *ShardRouter {
	return &ShardRouter{
		maxSizes: maxSizes,
		newShard: newShard,
		writers:  make(map[dbBucketKey]*FastaShardWriter),
	}
}

// Write routes one sequence to its (db, bucket) shard, rolling over at
// an article boundary once the shard's cumulative size passes the
// configured cap.
func (r *ShardRouter) Write(db string, bucket Bucket, articleID uint64, id, desc, seq string) error {
	key := dbBucketKey{db, bucket}
	w, ok := r.writers[key]
	if !ok {
		w = NewFastaShardWriter(r.maxSizes[bucket], func(idx int) (io.WriteCloser, error) {
			return r.newShard(db, bucket, idx)
		})
		r.writers[key] = w
	}
	return w.WriteSeq(articleID, id, desc, seq)
}

// Close closes every shard writer the router has opened.
func (r *ShardRouter) Close() error {
	var first error
	for _, w := range r.writers {
		if err := w.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
