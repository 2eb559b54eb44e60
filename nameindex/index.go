// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package nameindex implements the Name Index and spot-id assignment
// (C4): a frozen vector of every read name seen in pass 1, a stable
// sort permutation over it, and a dense 32-bit spot id assigned by
// scanning equal runs of that permutation.
package nameindex

import (
	"sort"
	"sync"

	"github.com/grailbio/base/traverse"
)

// Index is the frozen result of Build. Names is kept in original
// append order; SpotID[i] is the dense spot id for Names[i]; LastInSpot
// marks, for each row, whether it is the last row (in append order)
// belonging to its spot; HotSpot marks spots whose reads span fewer
// than HotThreshold rows.
type Index struct {
	Names       []string
	SpotID      []uint32
	LastInSpot  []bool
	HotSpot     map[uint32]bool
	NumSpots    uint32
	ReadsPerSpot map[uint32]int

	once sync.Once
	perm []int
}

// Build runs pass 1's name-vector freeze and spot-id assignment
// (spec §4.4). hotThreshold is H from §3/§4.5.
func Build(names []string, workers int, hotThreshold int) *Index {
	n := len(names)
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	// Stable sort by name; this permutation order is the spot-id
	// assignment order per spec §4.4 ("reflects the stable sort, not
	// file order"). The W-way worker split below walks contiguous
	// row ranges of this permutation so the boundary-continuation
	// rule (below) stays correct; it does not rebalance by key hash.
	sort.SliceStable(perm, func(i, j int) bool { return names[perm[i]] < names[perm[j]] })

	if workers <= 0 {
		workers = 1
	}
	if workers > n {
		workers = 1
	}
	if workers == 0 {
		workers = 1
	}

	idx := &Index{
		Names:       names,
		SpotID:      make([]uint32, n),
		LastInSpot:  make([]bool, n),
		HotSpot:     make(map[uint32]bool),
		ReadsPerSpot: make(map[uint32]int),
	}
	if n == 0 {
		return idx
	}

	type partial struct {
		// localIDs (below) holds each permutation entry's spot id
		// within this worker's slice, relative to the worker's own
		// counter; remapped to a global id after merge.
		lo, hi       int // half-open row range in permutation order owned by this worker
		localSpots   int
		firstRowSameAsPrev bool // true if this worker's first perm entry compares equal to the previous worker's last
	}

	chunk := (n + workers - 1) / workers
	parts := make([]partial, 0, workers)
	for lo := 0; lo < n; lo += chunk {
		hi := lo + chunk
		if hi > n {
			hi = n
		}
		parts = append(parts, partial{lo: lo, hi: hi})
	}

	localIDs := make([]uint32, n) // per-row, local spot id within its worker's slice (1-based)
	_ = traverse.Each(len(parts), func(pi int) error {
		p := parts[pi]
		// Boundary rule: a worker walks forward over any rows at the
		// start of its slice that share the name of the row
		// immediately preceding its slice; those rows belong to the
		// previous worker's last spot, not a new one here.
		start := p.lo
		if pi > 0 && start > 0 && names[perm[start]] == names[perm[start-1]] {
			parts[pi].firstRowSameAsPrev = true
		}
		localID := uint32(0)
		for i := p.lo; i < p.hi; i++ {
			if i == p.lo {
				if !parts[pi].firstRowSameAsPrev {
					localID++
				}
			} else if names[perm[i]] != names[perm[i-1]] {
				localID++
			}
			localIDs[i] = localID
		}
		parts[pi].localSpots = int(localID)
		return nil
	})

	// Merge under a single pass (spec: "merge their partial results
	// under a single mutex" — here expressed as a sequential fold
	// since the accumulator itself is the mutex-equivalent critical
	// section).
	globalBase := uint32(0)
	for pi, p := range parts {
		// A worker whose first run continues the previous worker's last
		// spot left those entries at local id 0 and did not count them
		// in localSpots, so offset+0 is that already-allocated id.
		offset := globalBase
		for i := p.lo; i < p.hi; i++ {
			idx.SpotID[perm[i]] = offset + localIDs[i]
		}
		globalBase += uint32(p.localSpots)
		_ = pi
	}
	idx.NumSpots = globalBase

	// last_in_spot: in permutation order, a row is last-in-spot if the
	// next permutation entry has a different spot id (or none).
	for i := 0; i < n; i++ {
		row := perm[i]
		isLast := i == n-1 || idx.SpotID[perm[i+1]] != idx.SpotID[row]
		idx.LastInSpot[row] = isLast
		idx.ReadsPerSpot[idx.SpotID[row]]++
	}

	// hot_spot: a spot is hot iff its rows (in original append order)
	// span fewer than hotThreshold rows.
	minRow := make(map[uint32]int)
	maxRow := make(map[uint32]int)
	for row, sid := range idx.SpotID {
		if mn, ok := minRow[sid]; !ok || row < mn {
			minRow[sid] = row
		}
		if mx, ok := maxRow[sid]; !ok || row > mx {
			maxRow[sid] = row
		}
	}
	for sid, mn := range minRow {
		if maxRow[sid]-mn < hotThreshold {
			idx.HotSpot[sid] = true
		}
	}
	return idx
}

// Count returns the number of rows bearing name, by binary search over
// the name vector in its stable-sorted order. Used by the collation
// checker to resolve an oracle hit to a verified true duplicate.
func (idx *Index) Count(name string) int {
	n := len(idx.Names)
	perm := idx.sortedPermOnce()
	lo := sort.Search(n, func(i int) bool { return idx.Names[perm[i]] >= name })
	count := 0
	for i := lo; i < n && idx.Names[perm[i]] == name; i++ {
		count++
	}
	return count
}

// sortedPermOnce rebuilds (and caches) the stable sort permutation
// used by Build, so Count can binary-search without retaining Build's
// transient state.
func (idx *Index) sortedPermOnce() []int {
	idx.once.Do(func() {
		perm := make([]int, len(idx.Names))
		for i := range perm {
			perm[i] = i
		}
		sort.SliceStable(perm, func(i, j int) bool { return idx.Names[perm[i]] < idx.Names[perm[j]] })
		idx.perm = perm
	})
	return idx.perm
}
