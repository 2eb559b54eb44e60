// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bamload

import "github.com/grailbio/hts/sam"

// Alignment is what a ReferenceReader reports about one primary,
// aligned record: the mismatch/indel counts the core needs to decide
// whether to trust the alignment, and the effective reference offset
// used by the sorted-order check (spec §4.10 step 5/8).
type Alignment struct {
	Mismatches      int
	Indels          int
	EffectiveOffset int64

	// Skip and Unknown select the two "drop the alignment" outcomes a
	// reference reader can report in place of a mismatch count: the
	// reference exists but this run was told to skip it, or the name
	// was not found in the BAM header at all.
	Skip    bool
	Unknown bool
}

// ReferenceReader is the narrow collaborator spec.md's reference-
// sequence fetcher sits behind. Computing real genomic mismatches and
// indels against a reference FASTA is an explicit non-goal of this
// loader (spec.md §1); callers that need real alignment evaluation
// wire in their own implementation, and the default used by New is a
// pass-through that trusts every primary alignment at face value.
type ReferenceReader interface {
	Evaluate(ref string, pos int, cigar sam.Cigar, seq sam.Seq) Alignment
}

type passthroughReference struct{}

func (passthroughReference) Evaluate(ref string, pos int, cigar sam.Cigar, seq sam.Seq) Alignment {
	return Alignment{EffectiveOffset: int64(pos)}
}

// CoverageSink receives the reference-coverage side table maintained
// while processing a coordinate-sorted (or declared-unsorted) BAM
// file. Like ReferenceReader, persisting genomic coverage is an
// external, non-goal concern here; New's default simply discards it.
type CoverageSink interface {
	AddCoverage(ref string, chunkStart int64, count int)
}

type discardCoverage struct{}

func (discardCoverage) AddCoverage(ref string, chunkStart int64, count int) {}
