// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bamload

import "github.com/grailbio/hts/sam"

// classified is the result of spec §4.10 step 2: "compute (aligned,
// is_primary, is_mate_1_or_2, flags) from the wire flags."
type classified struct {
	aligned   bool
	primary   bool
	readNum   int // 0 = unmated, 1/2 = mate-1/mate-2, 3 = both bits set
	unmated   bool
	pcrDup    bool
	colorSpaceTag bool
}

// csTag is the aux tag that marks a color-space read (CS sequence).
var csTag = []byte("CS")

func classify(rec *sam.Record) classified {
	_, hasCS := rec.Tag(csTag)
	paired := rec.Flags&sam.Paired != 0
	readNum := readNumberOf(rec.Flags)
	return classified{
		aligned:       rec.Flags&sam.Unmapped == 0 && rec.Ref != nil,
		primary:       rec.Flags&(sam.Secondary|sam.Supplementary) == 0,
		readNum:       readNum,
		unmated:       !paired || readNum == 3,
		pcrDup:        rec.Flags&sam.Duplicate != 0,
		colorSpaceTag: hasCS,
	}
}

// readNumberOf maps the Read1/Read2 flag bits to the loader's
// read-number convention. Per DESIGN.md's Open Question decision,
// readno 3 (both bits set) is treated as unmated and its value
// preserved verbatim rather than remapped.
func readNumberOf(f sam.Flags) int {
	r1 := f&sam.Read1 != 0
	r2 := f&sam.Read2 != 0
	switch {
	case r1 && r2:
		return 3
	case r1:
		return 1
	case r2:
		return 2
	default:
		return 0
	}
}

// readIndex maps a read number to the arena slot's 2-element
// per-read-number arrays (spec §3's arena Slot has exactly two
// primary-id/align-count slots, one per mate).
func readIndex(readNum int) int {
	if readNum == 2 {
		return 1
	}
	return 0
}
