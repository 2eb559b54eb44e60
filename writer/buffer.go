// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package writer

import "encoding/binary"

// byteBuffer is an append-only byte slice with varint helpers, the
// write-side half of encoding/pam/fieldio's byteBuffer.
type byteBuffer []byte

func (b *byteBuffer) ensure(n int) {
	if cap(*b) >= len(*b)+n {
		return
	}
	newCap := ((len(*b)+n)/16 + 1) * 16
	if newCap < cap(*b)*2 {
		newCap = cap(*b) * 2
	}
	newBuf := make([]byte, len(*b), newCap)
	copy(newBuf, *b)
	*b = newBuf
}

func (b *byteBuffer) PutUint8(v uint8) {
	b.ensure(1)
	*b = append(*b, v)
}

func (b *byteBuffer) PutVarint64(v int64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutVarint(tmp[:], v)
	b.ensure(n)
	*b = append(*b, tmp[:n]...)
}

func (b *byteBuffer) PutUvarint64(v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	b.ensure(n)
	*b = append(*b, tmp[:n]...)
}

func (b *byteBuffer) PutBytes(data []byte) {
	b.ensure(len(data))
	*b = append(*b, data...)
}

func (b *byteBuffer) PutString(s string) {
	b.ensure(len(s))
	*b = append(*b, s...)
}

func (b *byteBuffer) Bytes() []byte { return *b }
func (b *byteBuffer) Len() int      { return len(*b) }
