// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package spotstore

import (
	"fmt"
	"sync"
)

// seqCode maps {A,T,G,C,N} to the 3-bit DNA alphabet of §3, and back.
var seqCode = map[byte]byte{'A': 0, 'T': 1, 'G': 2, 'C': 3, 'N': 4}
var seqDecode = [8]byte{'A', 'T', 'G', 'C', 'N'}

// slotMetadata is one per-read-slot metadata row, per §3's cold Spot
// Store column set.
type slotMetadata struct {
	readNum    string
	spotGroup  string
	suffix     string
	channel    string
	nanoporeNo string
	readFilter bool // true = reject
	seqLoc     locator
	qualLoc    locator
	readerID   uint16
	valid      bool
}

// slot holds one read-slot's append-only sequence/quality columns and
// per-row metadata, indexed by spot id.
type slot struct {
	seq  []byte // 3-bit codes, one byte each (unpacked for simplicity)
	qual []int16
	meta map[uint32]slotMetadata
}

// ColdStore is the per-read-slot columnar store of §3/§4.5.
type ColdStore struct {
	mu    sync.Mutex
	slots []slot

	rowsSinceOptimize int
	rowsToClear       map[uint32]bool
}

// NewColdStore creates a store with maxSlots slots (slot = 0..max_reads-1).
func NewColdStore(maxSlots int) *ColdStore {
	return &ColdStore{
		slots:       make([]slot, maxSlots),
		rowsToClear: make(map[uint32]bool),
	}
}

// Append stores one read of a cold spot at the given slot index,
// returning an error if the slot-growth invariant (offset+len < 2^48)
// would be violated ("far read buffer overflow").
func (c *ColdStore) Append(spotID uint32, slotIdx int, r Read) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := &c.slots[slotIdx]
	if s.meta == nil {
		s.meta = make(map[uint32]slotMetadata)
	}

	seqOff := uint64(len(s.seq))
	for _, b := range r.Sequence {
		code, ok := seqCode[b]
		if !ok {
			code = seqCode['N']
		}
		s.seq = append(s.seq, code)
	}
	seqLoc, ok := newLocator(seqOff, uint32(len(r.Sequence)))
	if !ok {
		return fmt.Errorf("far read buffer overflow: slot %d sequence", slotIdx)
	}

	qualOff := uint64(len(s.qual))
	mid := int16(30) // first score stored as delta from a fixed mid-score of 30; quality bytes are taken as given
	prev := mid
	for i, q := range r.Quality {
		v := int16(q)
		var delta int16
		if i == 0 {
			delta = v - mid
		} else {
			delta = v - prev
		}
		s.qual = append(s.qual, delta)
		prev = v
	}
	qualLoc, ok := newLocator(qualOff, uint32(len(r.Quality)))
	if !ok {
		return fmt.Errorf("far read buffer overflow: slot %d quality", slotIdx)
	}

	s.meta[spotID] = slotMetadata{
		readNum:    r.ReadNum,
		spotGroup:  r.SpotGroup,
		suffix:     r.Suffix,
		channel:    r.Channel,
		nanoporeNo: r.NanoporeReadNo,
		readFilter: r.ReadFilter == 1,
		seqLoc:     seqLoc,
		qualLoc:    qualLoc,
		readerID:   r.ReaderID,
		valid:      true,
	}
	return nil
}

// Reconstruct rebuilds the Read stored at (spotID, slotIdx), inverting
// the sequence/quality encodings per §4.5.
func (c *ColdStore) Reconstruct(spotID uint32, slotIdx int) (Read, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := &c.slots[slotIdx]
	m, ok := s.meta[spotID]
	if !ok || !m.valid {
		return Read{}, false
	}
	seq := make([]byte, m.seqLoc.length())
	off := m.seqLoc.offset()
	for i := range seq {
		seq[i] = seqDecode[s.seq[off+uint64(i)]]
	}

	qualLen := m.qualLoc.length()
	quality := make([]byte, qualLen)
	qoff := m.qualLoc.offset()
	mid := int16(30)
	prev := mid
	for i := uint32(0); i < qualLen; i++ {
		delta := s.qual[qoff+uint64(i)]
		var v int16
		if i == 0 {
			v = delta + mid
		} else {
			v = delta + prev
		}
		quality[i] = byte(v)
		prev = v
	}
	r := Read{
		SpotName:       "",
		ReadNum:        m.readNum,
		SpotGroup:      m.spotGroup,
		Suffix:         m.suffix,
		Sequence:       seq,
		Quality:        quality,
		Channel:        m.channel,
		NanoporeReadNo: m.nanoporeNo,
		ReaderID:       m.readerID,
	}
	if m.readFilter {
		r.ReadFilter = 1
	}
	return r, true
}

// MarkClear accumulates spotID into the pending-clear bit-set,
// flushing in batches of batchSize per §4.5/§3 ("cleanup stage
// batches clears into groups of 5e6 rows").
func (c *ColdStore) MarkClear(spotID uint32, slotIdx int, batchSize int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rowsToClear[spotID] = true
	if len(c.rowsToClear) >= batchSize {
		c.flushClearLocked()
	}
}

func (c *ColdStore) flushClearLocked() {
	for i := range c.slots {
		s := &c.slots[i]
		for spotID := range c.rowsToClear {
			delete(s.meta, spotID)
		}
	}
	c.rowsToClear = make(map[uint32]bool)
}

// Optimize resets the optimization row counter. The in-memory slice
// representation has no compaction step: sequence and quality slices
// only grow, and cleared metadata is dropped by MarkClear's batch
// flush. Nothing in this module calls Optimize.
func (c *ColdStore) Optimize() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rowsSinceOptimize = 0
}
