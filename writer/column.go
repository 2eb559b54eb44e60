// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package writer implements the Writer Adapter (C12): one
// recordio-backed column per assembled-spot field, each buffered in
// blocks and flushed asynchronously, addressed by spot row number.
package writer

import "fmt"

// Column identifies one of the spot-row fields emitted per §4.12.
type Column uint8

const (
	ColName Column = iota
	ColRead
	ColQuality
	ColReadStart
	ColReadLen
	ColReadType
	ColReadFilter
	ColSpotGroup
	ColPlatform
	ColChannel
	ColReadNumber
	NumColumns = int(ColReadNumber) + 1
)

var columnNames = [NumColumns]string{
	ColName:       "NAME",
	ColRead:       "READ",
	ColQuality:    "QUALITY",
	ColReadStart:  "READ_START",
	ColReadLen:    "READ_LEN",
	ColReadType:   "READ_TYPE",
	ColReadFilter: "READ_FILTER",
	ColSpotGroup:  "SPOT_GROUP",
	ColPlatform:   "PLATFORM",
	ColChannel:    "CHANNEL",
	ColReadNumber: "READ_NUMBER",
}

func (c Column) String() string {
	if int(c) < len(columnNames) {
		return columnNames[c]
	}
	return fmt.Sprintf("Column(%d)", int(c))
}

// ParseColumn converts a column name back to its Column value.
func ParseColumn(name string) (Column, error) {
	for i, n := range columnNames {
		if n == name {
			return Column(i), nil
		}
	}
	return 0, fmt.Errorf("%s: unknown column name", name)
}

// columnBuf accumulates one recordio block's worth of a single
// column's encoded bytes, mirroring fieldio's fieldWriteBuf split
// between small fixed/varint values (defaultBuf) and variable-length
// blob data (blobBuf), plus prefix-delta encoding for NAME.
type columnBuf struct {
	seq        int
	numRows    int
	startRow   uint64
	endRow     uint64

	defaultBuf byteBuffer
	blobBuf    byteBuffer

	prevString []byte
}

func (b *columnBuf) reset(seq int) {
	b.seq = seq
	b.defaultBuf = b.defaultBuf[:0]
	b.blobBuf = b.blobBuf[:0]
	b.prevString = b.prevString[:0]
	b.numRows = 0
	b.startRow = 0
	b.endRow = 0
}

func (b *columnBuf) updateRowBounds(row uint64) {
	if b.numRows == 0 {
		b.startRow = row
	}
	b.endRow = row
	b.numRows++
}

func (b *columnBuf) totalLen() int { return len(b.defaultBuf) + len(b.blobBuf) }
