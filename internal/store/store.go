// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package store provides modernc.org/kv key encodings and ordering
// functions for the disk-backed stores the SeqFilter dedup index and
// the chain engine's per-db staging index use.
package store

import (
	"bytes"
	"encoding/binary"

	"github.com/kortschak/pubs/internal/psl"
)

var order = binary.BigEndian

// ByTargetPosition is a kv compare function ordering encoded
// PSLRecordKeys by target name (the "db,chrom,seqType" triple),
// strand, target start/end, matches (descending), then query name for
// uniqueness. It is the comparator the chain engine's per-db staging
// store opens with, so a forward scan of the store visits records in
// target-position order.
func ByTargetPosition(x, y []byte) int {
	if bytes.Equal(x, y) {
		return 0
	}

	rx := UnmarshalPSLKey(x)
	ry := UnmarshalPSLKey(y)

	switch {
	case rx.TName < ry.TName:
		return -1
	case rx.TName > ry.TName:
		return 1
	}
	switch {
	case rx.Strand < ry.Strand:
		return -1
	case rx.Strand > ry.Strand:
		return 1
	}
	switch {
	case rx.TStart < ry.TStart:
		return -1
	case rx.TStart > ry.TStart:
		return 1
	}
	switch {
	case rx.TEnd < ry.TEnd:
		return -1
	case rx.TEnd > ry.TEnd:
		return 1
	}
	switch {
	case rx.Matches > ry.Matches:
		return -1
	case rx.Matches < ry.Matches:
		return 1
	}

	// Ensure key uniqueness.
	switch {
	case rx.QName < ry.QName:
		return -1
	case rx.QName > ry.QName:
		return 1
	}
	panic("unreachable: duplicate psl record key")
}

// GroupByQueryOrderTargetPosition is a kv compare function ordering by
// query name first, then target position, so that all alignments of
// one query sit together. The pipeline's own stores open with
// ByTargetPosition; none opens with this comparator.
func GroupByQueryOrderTargetPosition(x, y []byte) int {
	if bytes.Equal(x, y) {
		return 0
	}

	rx := UnmarshalPSLKey(x)
	ry := UnmarshalPSLKey(y)

	switch {
	case rx.QName < ry.QName:
		return -1
	case rx.QName > ry.QName:
		return 1
	}
	switch {
	case rx.TName < ry.TName:
		return -1
	case rx.TName > ry.TName:
		return 1
	}
	switch {
	case rx.TStart < ry.TStart:
		return -1
	case rx.TStart > ry.TStart:
		return 1
	}
	switch {
	case rx.TEnd < ry.TEnd:
		return -1
	case rx.TEnd > ry.TEnd:
		return 1
	}
	panic("unreachable: duplicate psl record key")
}

// PSLRecordKey is the decoded form of a store key: the fields of a
// psl.Record needed to order and disambiguate it without touching the
// disk-backed value.
type PSLRecordKey struct {
	TName   string
	TStart  int64
	TEnd    int64
	QName   string
	Matches int64
	Strand  string
}

// MarshalPSLKey encodes the ordering fields of r as a sortable byte
// key for a modernc.org/kv store, length-prefixing each variable-width
// field the way internal/annotation's tab codec avoids ambiguity on
// embedded delimiters.
func MarshalPSLKey(r psl.Record) []byte {
	var (
		buf bytes.Buffer
		b   [8]byte
	)
	writeString := func(s string) {
		order.PutUint64(b[:], uint64(len(s)))
		buf.Write(b[:])
		buf.WriteString(s)
	}
	writeString(r.TName)
	order.PutUint64(b[:], uint64(r.TStart))
	buf.Write(b[:])
	order.PutUint64(b[:], uint64(r.TEnd))
	buf.Write(b[:])
	writeString(r.QName)
	order.PutUint64(b[:], uint64(r.Matches))
	buf.Write(b[:])
	writeString(r.Strand)
	return buf.Bytes()
}

// UnmarshalPSLKey decodes a key produced by MarshalPSLKey.
func UnmarshalPSLKey(data []byte) PSLRecordKey {
	var k PSLRecordKey
	n64 := binary.Size(uint64(0))
	readString := func() string {
		n := order.Uint64(data[:n64])
		data = data[n64:]
		s := string(data[:n])
		data = data[n:]
		return s
	}
	k.TName = readString()
	k.TStart = int64(order.Uint64(data[:n64]))
	data = data[n64:]
	k.TEnd = int64(order.Uint64(data[:n64]))
	data = data[n64:]
	k.QName = readString()
	k.Matches = int64(order.Uint64(data[:n64]))
	data = data[n64:]
	k.Strand = readString()
	return k
}
