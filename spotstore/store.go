// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package spotstore

import "sync"

// HotStore is the dictionary spot_id -> []Read for hot spots, cleared
// as spots are emitted (§3 "Spot Store (hot)").
type HotStore struct {
	mu   sync.Mutex
	data map[uint32][]Read
}

// NewHotStore creates an empty hot store.
func NewHotStore() *HotStore {
	return &HotStore{data: make(map[uint32][]Read)}
}

// Append adds r to spotID's buffered read list; O(1) amortized.
func (h *HotStore) Append(spotID uint32, r Read) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.data[spotID] = append(h.data[spotID], r)
}

// Take removes and returns spotID's buffered reads.
func (h *HotStore) Take(spotID uint32) []Read {
	h.mu.Lock()
	defer h.mu.Unlock()
	reads := h.data[spotID]
	delete(h.data, spotID)
	return reads
}

// Store combines the hot and cold partitions behind one interface:
// the pipeline's save-or-emit stage (C6) routes each read to Store
// without itself knowing which partition a spot belongs to.
type Store struct {
	Hot        *HotStore
	Cold       *ColdStore
	MaxSlots   int
	BatchSize  int
}

// NewStore creates a combined store. maxSlots bounds per-spot read
// cardinality (spec: "Cardinality <= 4", so 4 is the typical value).
func NewStore(maxSlots, batchSize int) *Store {
	return &Store{
		Hot:       NewHotStore(),
		Cold:      NewColdStore(maxSlots),
		MaxSlots:  maxSlots,
		BatchSize: batchSize,
	}
}

// Save buffers r for spotID, in the hot map if hot is true, else in
// the cold columnar store at slotIdx (the read's position within the
// spot, 0-based).
func (s *Store) Save(spotID uint32, slotIdx int, hot bool, r Read) error {
	if hot {
		s.Hot.Append(spotID, r)
		return nil
	}
	return s.Cold.Append(spotID, slotIdx, r)
}

// Assemble retrieves all reads buffered so far for spotID, whether
// hot or cold, appends `last` (the final read of the spot), and
// returns the ordered Spot. Duplicate removal and read-type
// assignment happen in the pipeline's assemble stage, not here.
func (s *Store) Assemble(spotID uint32, hot bool, last Read) Spot {
	var reads []Read
	if hot {
		reads = s.Hot.Take(spotID)
	} else {
		for slotIdx := 0; slotIdx < s.MaxSlots; slotIdx++ {
			if r, ok := s.Cold.Reconstruct(spotID, slotIdx); ok {
				reads = append(reads, r)
			}
		}
	}
	reads = append(reads, last)
	return Spot{SpotName: last.SpotName, Reads: reads}
}

// Clear marks a spot's cold-store rows (and any hot-map entry) for
// cleanup, per §4.5's batched bit-set clear.
func (s *Store) Clear(spotID uint32, hot bool) {
	if hot {
		s.Hot.Take(spotID)
		return
	}
	for slotIdx := 0; slotIdx < s.MaxSlots; slotIdx++ {
		s.Cold.MarkClear(spotID, slotIdx, s.BatchSize)
	}
}
