// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package writer

import (
	"hash"

	"blainsmith.com/go/seahash"
	"github.com/grailbio/base/errorreporter"
	"github.com/grailbio/base/recordio/recordiozstd"
	"github.com/grailbio/seqspot/defline"
	"github.com/grailbio/seqspot/spotstore"
)

// DefaultTransformers matches the donor tree's zstd default.
var DefaultTransformers = []string{"zstd"}

// Opts configures NewWriter.
type Opts struct {
	// DropColumns lists columns not to materialize, e.g. when NAME is
	// redirected to RAW_NAME or suppressed entirely by the caller
	// (spec §4.12's "column may be redirected ... or dropped").
	DropColumns  []Column
	Transformers []string
}

// Row is one assembled spot plus the context the Spot Store does not
// itself retain (instrument platform).
type Row struct {
	Spot     *spotstore.Spot
	Platform defline.Platform
}

// Writer computes, per spot, the row-wise payloads of §4.12 and
// appends them to one recordio file per column.
type Writer struct {
	dir    string
	opts   Opts
	fields [NumColumns]*fieldWriter
	err    errorreporter.T

	row  uint64
	hash hash.Hash64 // running content digest over each written read's READ and QUALITY bytes
}

// NewWriter creates column files under dir, which is created if
// necessary.
func NewWriter(dir string, opts Opts) *Writer {
	recordiozstd.Init()
	if len(opts.Transformers) == 0 {
		opts.Transformers = DefaultTransformers
	}
	w := &Writer{dir: dir, opts: opts, hash: seahash.New()}

	var drop [NumColumns]bool
	for _, c := range opts.DropColumns {
		drop[c] = true
	}
	for c := 0; c < NumColumns; c++ {
		if drop[c] {
			continue
		}
		col := Column(c)
		path := dir + "/" + col.String() + ".pam"
		w.fields[c] = newFieldWriter(path, col.String(), opts.Transformers, &w.err)
	}
	return w
}

func (w *Writer) active(c Column) *fieldWriter { return w.fields[c] }

// Write appends one assembled spot's row. Spots must be written in
// assembly order (spec §5 "Ordering": "the writer emits one row per
// spot, in the order spots are assembled").
func (w *Writer) Write(r Row) {
	if w.err.Err() != nil {
		return
	}
	spot := r.Spot
	row := w.row
	w.row++

	if fw := w.active(ColName); fw != nil {
		name := spot.SpotName
		if len(spot.Reads) > 0 && spot.Reads[0].Suffix != "" {
			name += spot.Reads[0].Suffix
		}
		putStringDelta(fw, row, name)
	}

	var seq, qual []byte
	starts := make([]int64, 0, len(spot.Reads))
	lens := make([]int64, 0, len(spot.Reads))
	types := make([]byte, 0, len(spot.Reads))
	filters := make([]byte, 0, len(spot.Reads))
	channels := make([]string, 0, len(spot.Reads))
	readNos := make([]string, 0, len(spot.Reads))

	for _, rd := range spot.Reads {
		starts = append(starts, int64(len(seq)))
		lens = append(lens, int64(len(rd.Sequence)))
		seq = append(seq, rd.Sequence...)
		qual = append(qual, rd.Quality...)
		types = append(types, byte(rd.ReadType))
		filters = append(filters, byte(rd.ReadFilter))
		channels = append(channels, rd.Channel)
		readNos = append(readNos, rd.NanoporeReadNo)
	}

	if fw := w.active(ColRead); fw != nil {
		putBytes(fw, row, seq)
	}
	if fw := w.active(ColQuality); fw != nil {
		putBytes(fw, row, qual)
	}
	if fw := w.active(ColReadStart); fw != nil {
		putInt64Slice(fw, row, starts)
	}
	if fw := w.active(ColReadLen); fw != nil {
		putInt64Slice(fw, row, lens)
	}
	if fw := w.active(ColReadType); fw != nil {
		putByteSlice(fw, row, types)
	}
	if fw := w.active(ColReadFilter); fw != nil {
		putByteSlice(fw, row, filters)
	}
	if fw := w.active(ColSpotGroup); fw != nil {
		sg := ""
		if len(spot.Reads) > 0 {
			sg = spot.Reads[0].SpotGroup
		}
		putString(fw, row, sg)
	}
	if fw := w.active(ColPlatform); fw != nil {
		putByte(fw, row, byte(r.Platform))
	}
	if fw := w.active(ColChannel); fw != nil {
		putStringSlice(fw, row, channels)
	}
	if fw := w.active(ColReadNumber); fw != nil {
		putStringSlice(fw, row, readNos)
	}

	w.hash.Write(seq)
	w.hash.Write(qual)

	for c := 0; c < NumColumns; c++ {
		if fw := w.fields[c]; fw != nil && fw.BufLen() >= 8<<20 {
			fw.FlushBuf()
			fw.NewBuf()
		}
	}
}

// OutputFingerprint returns the running content digest over every
// spot written so far, for the QC/current metadata key.
func (w *Writer) OutputFingerprint() uint64 { return w.hash.Sum64() }

// Close finalizes every column file.
func (w *Writer) Close() error {
	for _, fw := range w.fields {
		if fw != nil {
			if err := fw.Close(); err != nil {
				w.err.Set(err)
			}
		}
	}
	return w.err.Err()
}

// Err returns any error encountered so far.
func (w *Writer) Err() error { return w.err.Err() }

func putStringDelta(fw *fieldWriter, row uint64, s string) {
	wb := fw.buf
	wb.updateRowBounds(row)
	prefix, suffix := commonPrefix(string(wb.prevString), s)
	wb.defaultBuf.PutUvarint64(uint64(prefix))
	wb.defaultBuf.PutUvarint64(uint64(len(suffix)))
	wb.blobBuf.PutString(suffix)
	wb.prevString = append(wb.prevString[:0], s...)
}

func commonPrefix(prev, cur string) (int, string) {
	n := len(prev)
	if len(cur) < n {
		n = len(cur)
	}
	i := 0
	for i < n && prev[i] == cur[i] {
		i++
	}
	return i, cur[i:]
}

func putBytes(fw *fieldWriter, row uint64, data []byte) {
	wb := fw.buf
	wb.updateRowBounds(row)
	wb.defaultBuf.PutUvarint64(uint64(len(data)))
	wb.blobBuf.PutBytes(data)
}

func putString(fw *fieldWriter, row uint64, s string) {
	putBytes(fw, row, []byte(s))
}

func putByte(fw *fieldWriter, row uint64, v byte) {
	wb := fw.buf
	wb.updateRowBounds(row)
	wb.defaultBuf.PutUint8(v)
}

func putByteSlice(fw *fieldWriter, row uint64, vs []byte) {
	wb := fw.buf
	wb.updateRowBounds(row)
	wb.defaultBuf.PutUvarint64(uint64(len(vs)))
	wb.blobBuf.PutBytes(vs)
}

func putInt64Slice(fw *fieldWriter, row uint64, vs []int64) {
	wb := fw.buf
	wb.updateRowBounds(row)
	wb.defaultBuf.PutUvarint64(uint64(len(vs)))
	for _, v := range vs {
		wb.defaultBuf.PutVarint64(v)
	}
}

func putStringSlice(fw *fieldWriter, row uint64, vs []string) {
	wb := fw.buf
	wb.updateRowBounds(row)
	wb.defaultBuf.PutUvarint64(uint64(len(vs)))
	for _, s := range vs {
		wb.defaultBuf.PutUvarint64(uint64(len(s)))
		wb.blobBuf.PutString(s)
	}
}
