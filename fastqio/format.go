// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package fastqio implements the Record Reader (C2): streaming one
// platform-specific FASTQ quartet from a byte source, with
// transparent gzip/bzip2 autodetection, sequence/quality alphabet and
// score-range validation, and ambiguity-code translation.
package fastqio

import (
	"bufio"
	"compress/bzip2"
	"io"

	"github.com/klauspost/compress/gzip"
)

var (
	gzipMagic  = []byte{0x1f, 0x8b}
	bzip2Magic = []byte{'B', 'Z', 'h'}
)

// Open wraps r with a decompressing reader, autodetected by sniffing
// its first bytes (spec §6: "Plaintext, gzip, or bzip2 autodetected
// on open"). The returned reader is buffered.
func Open(r io.Reader) (io.Reader, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	magic, err := br.Peek(3)
	if err != nil && err != io.EOF {
		return nil, err
	}
	switch {
	case len(magic) >= 2 && magic[0] == gzipMagic[0] && magic[1] == gzipMagic[1]:
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, err
		}
		return gz, nil
	case len(magic) >= 3 && magic[0] == bzip2Magic[0] && magic[1] == bzip2Magic[1] && magic[2] == bzip2Magic[2]:
		return bzip2.NewReader(br), nil
	default:
		return br, nil
	}
}
