// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package fastqio

import (
	"bufio"
	"io"
	"strings"

	"github.com/grailbio/seqspot/errbudget"
)

// Record is one parsed FASTQ quartet, prior to defline
// classification (performed by the defline package).
type Record struct {
	Defline string // the raw "@..." header line, unparsed
	Seq     []byte
	Qual    []byte // raw quality bytes/text, not yet validated or decoded
	Line    int64  // 1-based line number of the defline
}

// Reader streams logical quartets from a FASTQ byte source, handling
// multi-line sequence and quality blocks per §4.2.
type Reader struct {
	b        *bufio.Reader
	line     int64
	pending  string // a "@"-line buffered by the defensive re-buffer rule
	hasValid bool
	err      error
}

// NewReader constructs a Reader over an already-decompressed stream
// (see Open for autodetection).
func NewReader(r io.Reader) *Reader {
	return &Reader{b: bufio.NewReaderSize(r, 1<<20)}
}

func (r *Reader) readLine() (string, bool) {
	if r.pending != "" {
		s := r.pending
		r.pending = ""
		return s, true
	}
	line, err := r.b.ReadString('\n')
	if len(line) == 0 && err != nil {
		return "", false
	}
	r.line++
	return strings.TrimRight(line, "\r\n"), true
}

// Next returns the next quartet, or ok=false at end of stream (err is
// nil) or on a structural read error (err is non-nil).
func (r *Reader) Next() (rec Record, err *errbudget.Error, ok bool) {
	// Skip leading blank lines between records.
	var defline string
	for {
		l, have := r.readLine()
		if !have {
			return Record{}, nil, false
		}
		if strings.TrimSpace(l) == "" {
			continue
		}
		defline = l
		break
	}
	if len(defline) == 0 || (defline[0] != '@' && defline[0] != '>') {
		return Record{}, errbudget.New(errbudget.CodeDeflineUnrecognized, "<redacted>"), false
	}
	deflineLine := r.line

	var seq []byte
	for {
		l, have := r.readLine()
		if !have {
			return Record{}, errbudget.New(errbudget.CodeNoQuality, ""), false
		}
		if len(l) > 0 && l[0] == '+' {
			break
		}
		// Defensive re-buffer: if a '+' is missing but the next line starts
		// with '@' or '>' after some sequence has been read, treat it as
		// the next record's defline. The line is not parsed as a defline
		// here, and the sequence length is not checked.
		if len(l) > 0 && (l[0] == '@' || l[0] == '>') && len(seq) > 0 {
			r.pending = l
			break
		}
		seq = append(seq, []byte(l)...)
	}
	if len(seq) == 0 {
		return Record{}, errbudget.New(errbudget.CodeNoSequence, ""), false
	}

	var qual []byte
	for len(qual) < len(seq) {
		l, have := r.readLine()
		if !have {
			if len(qual) == 0 {
				return Record{}, errbudget.New(errbudget.CodeNoQuality, ""), false
			}
			break
		}
		if len(qual) > 0 {
			qual = append(qual, ' ')
		}
		qual = append(qual, []byte(l)...)
	}

	return Record{Defline: defline, Seq: seq, Qual: qual, Line: deflineLine}, nil, true
}
