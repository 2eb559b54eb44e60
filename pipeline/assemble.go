// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package pipeline

import (
	"sort"
	"strconv"

	"github.com/grailbio/seqspot/spotstore"
)

// assignReadTypesAndDedup applies the ordering, duplicate-removal,
// and read-type assignment rules of spec §3 to a freshly assembled
// spot, in place.
//
// Ordering: if all contributing reads carry an explicit read number,
// sort ascending by it; otherwise sort by (reader-index, line-number).
// Reads rebuilt from the cold store carry line number 0, which keeps
// them ahead of the spot's last read from the same reader.
//
// Duplicate reads within a spot (identical read_num, sequence,
// quality) are removed silently.
func assignReadTypesAndDedup(spot *spotstore.Spot) {
	reads := spot.Reads
	if allHaveReadNum(reads) {
		sort.SliceStable(reads, func(i, j int) bool {
			ni, _ := strconv.Atoi(reads[i].ReadNum)
			nj, _ := strconv.Atoi(reads[j].ReadNum)
			return ni < nj
		})
	} else {
		sort.SliceStable(reads, func(i, j int) bool {
			if reads[i].ReaderID != reads[j].ReaderID {
				return reads[i].ReaderID < reads[j].ReaderID
			}
			return reads[i].LineNumber < reads[j].LineNumber
		})
	}
	reads = dedup(reads)
	applyReadTypeDefault(reads)
	spot.Reads = reads
}

func allHaveReadNum(reads []spotstore.Read) bool {
	for _, r := range reads {
		if r.ReadNum == "" {
			return false
		}
	}
	return true
}

func dedup(reads []spotstore.Read) []spotstore.Read {
	out := reads[:0:0]
	seen := make(map[string]bool, len(reads))
	for _, r := range reads {
		key := r.ReadNum + "\x00" + string(r.Sequence) + "\x00" + string(r.Quality)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}

// applyReadTypeDefault implements the priority-3 rule of §3's Read
// Type Assignment: every read of a spot with at most 2 reads is set to
// biological. Spots with more than 2 reads keep each read's ReadType
// unchanged. No --readTypes vector or "A" >=40bp sentinel is applied
// anywhere in the pipeline.
func applyReadTypeDefault(reads []spotstore.Read) {
	if len(reads) > 2 {
		return
	}
	for i := range reads {
		reads[i].ReadType = spotstore.ReadTypeBiological
	}
}
