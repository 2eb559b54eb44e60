// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package spotstore implements the Spot Store and cold/hot
// partitioning (C5): an in-memory map for spots whose reads are close
// together in the input stream ("hot"), and per-read-slot columnar
// storage for spots whose reads are far apart ("cold").
package spotstore

import "github.com/grailbio/seqspot/defline"

// ReadType classifies a Read per §3/§4.4's Read Type Assignment.
type ReadType int

const (
	ReadTypeBiological ReadType = iota
	ReadTypeTechnical
)

// Read is the immutable value produced by the Record Reader, after
// defline classification and sequence/quality validation.
type Read struct {
	SpotName       string
	ReadNum        string
	SpotGroup      string
	Suffix         string
	Sequence       []byte
	Quality        []byte // Phred-scale scores, one byte per base
	ReadType       ReadType
	ReadFilter     defline.ReadFilter
	Channel        string
	NanoporeReadNo string

	ReaderID   uint16
	LineNumber int64
}

// Spot is an ordered, non-empty sequence of Reads sharing SpotName.
// Cardinality must be <= 4 (spec §3); callers enforce this before
// construction.
type Spot struct {
	SpotName string
	Reads    []Read
}

// locator packs (length, offset) per §3: "(length<<48)|offset";
// offsets are 48 bits, so a slot's total run is bounded at 2^48.
type locator uint64

const maxOffset = uint64(1)<<48 - 1

func newLocator(offset uint64, length uint32) (locator, bool) {
	if offset+uint64(length) > maxOffset {
		return 0, false
	}
	return locator(uint64(length)<<48 | offset), true
}

func (l locator) offset() uint64 { return uint64(l) & maxOffset }
func (l locator) length() uint32 { return uint32(uint64(l) >> 48) }
