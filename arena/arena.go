// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package arena implements the Arena Table (C8): a file-backed,
// memory-mapped sparse array indexed by the 64-bit keyindex.Key,
// lazily materialized in 1M-slot sub-chunks.
package arena

import (
	"os"
	"sync"

	"github.com/edsrzf/mmap-go"
	"github.com/grailbio/seqspot/keyindex"
)

// ElemSize is the fixed per-element size, a 4-byte multiple (spec
// §4.8). Slot layout as encoded: primary_id[2] i40 (5 bytes each),
// spot_id i40 (5), fragment_id u32 (4), platform u8 (1),
// align_count[2] u8 (2), flags u8 (1) = 23 bytes, padded to 32.
const ElemSize = 32

const slotsPerSubchunk = 1 << 20 // 1M
const partitions = 256

// Flags bits within a slot, per §3.
const (
	FlagUnmated uint8 = 1 << iota
	FlagPCRDup
	FlagHasARead
	FlagUnaligned1
	FlagUnaligned2
)

// Slot mirrors the Arena Table's per-key fixed-size record (§3).
type Slot struct {
	PrimaryID  [2]int64 // i40, sign-extended
	SpotID     int64    // i40
	FragmentID uint32
	Platform   uint8
	AlignCount [2]uint8 // saturating at 254; 255 means "many"
	Flags      uint8
}

func (s *Slot) encode(buf []byte) {
	putInt40(buf[0:5], s.PrimaryID[0])
	putInt40(buf[5:10], s.PrimaryID[1])
	putInt40(buf[10:15], s.SpotID)
	byteOrderPutUint32(buf[15:19], s.FragmentID)
	buf[19] = s.Platform
	buf[20] = s.AlignCount[0]
	buf[21] = s.AlignCount[1]
	buf[22] = s.Flags
}

func (s *Slot) decode(buf []byte) {
	s.PrimaryID[0] = getInt40(buf[0:5])
	s.PrimaryID[1] = getInt40(buf[5:10])
	s.SpotID = getInt40(buf[10:15])
	s.FragmentID = byteOrderUint32(buf[15:19])
	s.Platform = buf[19]
	s.AlignCount[0] = buf[20]
	s.AlignCount[1] = buf[21]
	s.Flags = buf[22]
}

func putInt40(b []byte, v int64) {
	for i := 0; i < 5; i++ {
		b[i] = byte(v >> (8 * uint(4-i)))
	}
}
func getInt40(b []byte) int64 {
	var v int64
	for i := 0; i < 5; i++ {
		v = v<<8 | int64(b[i])
	}
	// sign-extend from bit 39
	if v&(1<<39) != 0 {
		v -= 1 << 40
	}
	return v
}
func byteOrderPutUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}
func byteOrderUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

type subchunk struct {
	f   *os.File
	m   mmap.MMap
}

// Table is the mmap-backed sparse array. Index space is (256
// partitions) x (1M sub-chunks) x (1M slots per sub-chunk); only
// sub-chunks actually touched are backed by disk and mapped.
type Table struct {
	dir string
	mu  sync.Mutex
	// subchunks[partition] maps sub-chunk index to its mapping.
	subchunks [partitions]map[uint32]*subchunk
}

// Open creates a Table rooted at dir; each touched sub-chunk becomes
// its own backing file under dir.
func Open(dir string) (*Table, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	t := &Table{dir: dir}
	for i := range t.subchunks {
		t.subchunks[i] = make(map[uint32]*subchunk)
	}
	return t, nil
}

func subchunkIndex(counter uint32) (idx uint32, slotInChunk uint32) {
	return counter / slotsPerSubchunk, counter % slotsPerSubchunk
}

func (t *Table) subchunkPath(partition uint8, chunkIdx uint32) string {
	return t.dir + "/p" + itoa(int(partition)) + "_c" + itoa(int(chunkIdx)) + ".arena"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// Get returns a byte slice view of the slot for key, extending (and,
// on first touch, mapping) the backing sub-chunk as needed. The
// returned slice is stable for the lifetime of the Table (spec §4.8
// contract).
func (t *Table) Get(key keyindex.Key) ([]byte, error) {
	partition := key.Partition()
	chunkIdx, slotInChunk := subchunkIndex(key.Counter())

	t.mu.Lock()
	sc, ok := t.subchunks[partition][chunkIdx]
	if !ok {
		var err error
		sc, err = t.mapSubchunk(partition, chunkIdx)
		if err != nil {
			t.mu.Unlock()
			return nil, err
		}
		t.subchunks[partition][chunkIdx] = sc
	}
	t.mu.Unlock()

	off := int(slotInChunk) * ElemSize
	return sc.m[off : off+ElemSize], nil
}

func (t *Table) mapSubchunk(partition uint8, chunkIdx uint32) (*subchunk, error) {
	path := t.subchunkPath(partition, chunkIdx)
	size := int64(slotsPerSubchunk * ElemSize)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	if info, err := f.Stat(); err == nil && info.Size() < size {
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, err
		}
	}
	m, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &subchunk{f: f, m: m}, nil
}

// GetSlot reads and decodes the slot for key.
func (t *Table) GetSlot(key keyindex.Key) (Slot, error) {
	buf, err := t.Get(key)
	if err != nil {
		return Slot{}, err
	}
	var s Slot
	s.decode(buf)
	return s, nil
}

// PutSlot encodes and writes s into the slot for key.
func (t *Table) PutSlot(key keyindex.Key, s Slot) error {
	buf, err := t.Get(key)
	if err != nil {
		return err
	}
	s.encode(buf)
	return nil
}

// IncrAlignCount saturates at 254 per §3/§8 property 6; 255 is
// reserved to mean "many" and is never reached by increment alone.
func IncrAlignCount(c *uint8, by int) {
	if *c >= 254 {
		*c = 254
		return
	}
	n := int(*c) + by
	if n >= 254 {
		*c = 254
		return
	}
	*c = uint8(n)
}

// Close unmaps and closes every touched sub-chunk, then removes the
// backing directory's files (teardown per §4.8/§9 "Manual mmap
// lifecycle").
func (t *Table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var firstErr error
	for p := range t.subchunks {
		for idx, sc := range t.subchunks[p] {
			if err := sc.m.Unmap(); err != nil && firstErr == nil {
				firstErr = err
			}
			name := sc.f.Name()
			sc.f.Close()
			os.Remove(name)
			delete(t.subchunks[p], idx)
		}
	}
	return firstErr
}
