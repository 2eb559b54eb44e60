// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package fragbank implements the Fragment Bank (C9): a spill-to-disk
// allocator holding unmated read payloads, keyed by a 32-bit id whose
// low bit encodes chunk class (odd = hot, even = cold). Grounded on
// the donor tree's deleted encoding/bampair/disk_mate_shard.go spill
// technique, reimplemented for this spec's order-independent,
// single-pass mate resolution.
package fragbank

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"github.com/golang/snappy"
)

// Info is the header prepended to every stored blob, per §3:
// "{FragmentInfo header; seq bytes; qual bytes; spot_group bytes}".
type Info struct {
	SeqLen       uint32
	QualLen      uint32
	SpotGroupLen uint32
}

// Bank is the append-only allocator over two spill files: "hot" for
// same-reference pairs expected to be matched soon, "cold" for pairs
// expected to be matched much later.
type Bank struct {
	dir string

	mu   sync.Mutex
	hot  *os.File
	cold *os.File

	// free lists of ids released by Free, handed out again by a later
	// Alloc of the same class.
	freeHot  []uint32
	freeCold []uint32

	offsets map[uint32]int64 // id -> file offset of its header
	sizes   map[uint32]int64 // id -> size of its encoded+compressed blob
	nextHot  uint32
	nextCold uint32
}

// Open creates (or truncates) the bank's two spill files under dir.
// hotChunkBytes and coldChunkBytes are cache_size/8 and 4*cache_size/8
// respectively, per §4.9; they are not used here, since files grow by
// append rather than by fixed chunk, and Bank does not store them.
func Open(dir string, hotChunkBytes, coldChunkBytes int64) (*Bank, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	hot, err := os.OpenFile(dir+"/hot.spill", os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	cold, err := os.OpenFile(dir+"/cold.spill", os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		hot.Close()
		return nil, err
	}
	return &Bank{
		dir: dir, hot: hot, cold: cold,
		offsets: make(map[uint32]int64),
		sizes:   make(map[uint32]int64),
	}, nil
}

// isHot reports whether id belongs to the hot chunk class (odd ids).
func isHot(id uint32) bool { return id&1 == 1 }

// Alloc stores seq/qual/spotGroup and returns a new id.
// isSameReferenceNearPosition selects the hot chunk (fast-matched
// pairs) vs the cold chunk (§4.9's alloc hint).
func (b *Bank) Alloc(seq, qual, spotGroup []byte, isSameReferenceNearPosition bool) (uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var id uint32
	var f *os.File
	if isSameReferenceNearPosition {
		f = b.hot
		if len(b.freeHot) > 0 {
			id = b.freeHot[len(b.freeHot)-1]
			b.freeHot = b.freeHot[:len(b.freeHot)-1]
		} else {
			id = b.nextHot*2 + 1 // odd
			b.nextHot++
		}
	} else {
		f = b.cold
		if len(b.freeCold) > 0 {
			id = b.freeCold[len(b.freeCold)-1]
			b.freeCold = b.freeCold[:len(b.freeCold)-1]
		} else {
			id = b.nextCold * 2 // even
			b.nextCold++
		}
	}

	payload := encodeBlob(seq, qual, spotGroup)
	compressed := snappy.Encode(nil, payload)

	off, err := f.Seek(0, os.SEEK_END)
	if err != nil {
		return 0, err
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(compressed)))
	if _, err := f.Write(lenBuf[:]); err != nil {
		return 0, err
	}
	if _, err := f.Write(compressed); err != nil {
		return 0, err
	}
	b.offsets[id] = off
	b.sizes[id] = int64(len(compressed))
	return id, nil
}

func encodeBlob(seq, qual, spotGroup []byte) []byte {
	info := Info{SeqLen: uint32(len(seq)), QualLen: uint32(len(qual)), SpotGroupLen: uint32(len(spotGroup))}
	buf := make([]byte, 12, 12+len(seq)+len(qual)+len(spotGroup))
	binary.BigEndian.PutUint32(buf[0:4], info.SeqLen)
	binary.BigEndian.PutUint32(buf[4:8], info.QualLen)
	binary.BigEndian.PutUint32(buf[8:12], info.SpotGroupLen)
	buf = append(buf, seq...)
	buf = append(buf, qual...)
	buf = append(buf, spotGroup...)
	return buf
}

func decodeBlob(buf []byte) (seq, qual, spotGroup []byte, err error) {
	if len(buf) < 12 {
		return nil, nil, nil, fmt.Errorf("fragbank: truncated blob")
	}
	seqLen := binary.BigEndian.Uint32(buf[0:4])
	qualLen := binary.BigEndian.Uint32(buf[4:8])
	sgLen := binary.BigEndian.Uint32(buf[8:12])
	rest := buf[12:]
	if uint32(len(rest)) < seqLen+qualLen+sgLen {
		return nil, nil, nil, fmt.Errorf("fragbank: truncated blob")
	}
	seq = rest[:seqLen]
	qual = rest[seqLen : seqLen+qualLen]
	spotGroup = rest[seqLen+qualLen : seqLen+qualLen+sgLen]
	return seq, qual, spotGroup, nil
}

// Size returns the decompressed payload size for id.
func (b *Bank) Size(id uint32) (int, error) {
	seq, qual, sg, err := b.readBlob(id)
	if err != nil {
		return 0, err
	}
	return len(seq) + len(qual) + len(sg) + 12, nil
}

func (b *Bank) readBlob(id uint32) (seq, qual, spotGroup []byte, err error) {
	b.mu.Lock()
	off, ok := b.offsets[id]
	size := b.sizes[id]
	var f *os.File
	if isHot(id) {
		f = b.hot
	} else {
		f = b.cold
	}
	b.mu.Unlock()
	if !ok {
		return nil, nil, nil, fmt.Errorf("fragbank: unknown id %d", id)
	}
	var lenBuf [4]byte
	if _, err := f.ReadAt(lenBuf[:], off); err != nil {
		return nil, nil, nil, err
	}
	compressed := make([]byte, size)
	if _, err := f.ReadAt(compressed, off+4); err != nil {
		return nil, nil, nil, err
	}
	payload, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, nil, nil, err
	}
	return decodeBlob(payload)
}

// Read returns the seq/qual/spotGroup payload for id.
func (b *Bank) Read(id uint32) (seq, qual, spotGroup []byte, err error) {
	return b.readBlob(id)
}

// Free marks id's slot reusable by a future Alloc of the same class.
func (b *Bank) Free(id uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.offsets, id)
	delete(b.sizes, id)
	if isHot(id) {
		b.freeHot = append(b.freeHot, id)
	} else {
		b.freeCold = append(b.freeCold, id)
	}
}

// Close closes the backing spill files.
func (b *Bank) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	err1 := b.hot.Close()
	err2 := b.cold.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
