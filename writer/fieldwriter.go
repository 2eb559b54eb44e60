// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package writer

import (
	"encoding/binary"
	"fmt"

	"github.com/grailbio/base/errorreporter"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/recordio"
	"github.com/grailbio/base/vcontext"
)

// blockHeaderLen is the fixed size of the block header prepended to
// every recordio block: two big-endian uint32 byte offsets delimiting
// defaultBuf and blobBuf within the flattened block payload.
const blockHeaderLen = 8

// fieldWriter buffers and flushes the values of a single column,
// following encoding/pam/fieldio.Writer's block-buffer-then-async-
// flush structure but keyed by row number instead of biopb.Coord.
type fieldWriter struct {
	label string
	out   file.File
	rio   recordio.Writer

	nextBlockSeq int
	buf          *columnBuf

	err *errorreporter.T

	blocks []blockIndexEntry
}

type blockIndexEntry struct {
	NumRows    int
	StartRow   uint64
	EndRow     uint64
	FileOffset int64
}

func newFieldWriter(path, label string, transformers []string, errp *errorreporter.T) *fieldWriter {
	fw := &fieldWriter{label: label, err: errp}
	fw.buf = &columnBuf{}
	fw.buf.reset(0)

	ctx := vcontext.Background()
	out, err := file.Create(ctx, path)
	if err != nil {
		fw.err.Set(err)
		return fw
	}
	fw.out = out
	fw.rio = recordio.NewWriter(out.Writer(ctx), recordio.WriterOpts{
		Transformers:        transformers,
		Marshal:             fw.marshalBlock,
		Index:               fw.indexCallback,
		MaxFlushParallelism: 2,
	})
	fw.rio.AddHeader(recordio.KeyTrailer, true)
	return fw
}

func (fw *fieldWriter) BufLen() int { return fw.buf.totalLen() }

func (fw *fieldWriter) marshalBlock(scratch []byte, v interface{}) ([]byte, error) {
	wb := v.(*columnBuf)
	var header [blockHeaderLen]byte
	binary.BigEndian.PutUint32(header[0:4], uint32(blockHeaderLen))
	binary.BigEndian.PutUint32(header[4:8], uint32(blockHeaderLen+len(wb.defaultBuf)))
	out := make([]byte, 0, blockHeaderLen+wb.totalLen())
	out = append(out, header[:]...)
	out = append(out, wb.defaultBuf...)
	out = append(out, wb.blobBuf...)
	return out, nil
}

func (fw *fieldWriter) indexCallback(loc recordio.ItemLocation, v interface{}) error {
	wb := v.(*columnBuf)
	fw.blocks = append(fw.blocks, blockIndexEntry{
		NumRows:    wb.numRows,
		StartRow:   wb.startRow,
		EndRow:     wb.endRow,
		FileOffset: loc.Block,
	})
	return nil
}

func (fw *fieldWriter) FlushBuf() {
	fw.rio.Append(fw.buf)
	fw.rio.Flush()
	fw.buf = nil
}

func (fw *fieldWriter) NewBuf() {
	if fw.buf != nil {
		panic(fmt.Sprintf("overwriting buffer %s", fw.label))
	}
	seq := fw.nextBlockSeq
	fw.nextBlockSeq++
	b := &columnBuf{}
	b.reset(seq)
	fw.buf = b
}

// Close flushes any remaining buffer and finalizes the recordio file.
func (fw *fieldWriter) Close() error {
	if fw.buf != nil && fw.buf.numRows > 0 {
		fw.FlushBuf()
	}
	if fw.out == nil {
		return fw.err.Err()
	}
	ctx := vcontext.Background()
	var idx indexHeader
	idx.Blocks = fw.blocks
	data := idx.marshal()
	fw.rio.SetTrailer(data)
	if err := fw.rio.Finish(); err != nil {
		fw.err.Set(err)
	}
	if err := fw.out.Close(ctx); err != nil {
		fw.err.Set(err)
	}
	return fw.err.Err()
}

// indexHeader is the trailer recorded at the end of a column file:
// a JSON-free, fixed-width encoding of the block index, since the
// donor tree's equivalent (biopb.PAMFieldIndex) is a protobuf message
// specific to genomic coordinates and has no row-indexed counterpart.
type indexHeader struct {
	Blocks []blockIndexEntry
}

func (h *indexHeader) marshal() []byte {
	buf := make([]byte, 4, 4+len(h.Blocks)*32)
	binary.BigEndian.PutUint32(buf, uint32(len(h.Blocks)))
	for _, b := range h.Blocks {
		var entry [32]byte
		binary.BigEndian.PutUint64(entry[0:8], uint64(b.NumRows))
		binary.BigEndian.PutUint64(entry[8:16], b.StartRow)
		binary.BigEndian.PutUint64(entry[16:24], b.EndRow)
		binary.BigEndian.PutUint64(entry[24:32], uint64(b.FileOffset))
		buf = append(buf, entry[:]...)
	}
	return buf
}
