// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package fastqio

import (
	"strconv"
	"strings"

	"github.com/grailbio/seqspot/errbudget"
)

// Encoding identifies how quality scores are represented on the wire.
type Encoding int

const (
	EncodingNumeric Encoding = iota
	EncodingPhred33
	EncodingPhred64
)

// Range returns the valid [min,max] score range for the encoding,
// per spec §4.2.
func (e Encoding) Range() (min, max int) {
	switch e {
	case EncodingPhred33:
		return 33, 126
	case EncodingPhred64:
		return 64, 126
	default:
		return -5, 40
	}
}

// translateBase applies the sequence character translation rule of
// §4.2: {u,U}->T; {-,X,?,.}->N; else upper.
func translateBase(c byte) byte {
	switch c {
	case 'u', 'U':
		return 'T'
	case '-', 'X', '?', '.':
		return 'N'
	default:
		if c >= 'a' && c <= 'z' {
			return c - ('a' - 'A')
		}
		return c
	}
}

// TranslateSequence rewrites seq in place per translateBase and
// reports the first non-alphabetic byte index, or -1 if all bytes are
// alphabetic after translation.
func TranslateSequence(seq []byte) int {
	for i, c := range seq {
		t := translateBase(c)
		seq[i] = t
		if !((t >= 'A' && t <= 'Z') || (t >= 'a' && t <= 'z')) {
			return i
		}
	}
	return -1
}

// ValidateQualityPhred checks each byte's integer value is within the
// encoding's range, padding with mid-score if short and truncating if
// long, matching §4.2. Padding and truncation are reported through the
// padded and truncated results; no warning is logged here.
func ValidateQualityPhred(qual []byte, seqLen int, enc Encoding) (out []byte, padded, truncated bool, err *errbudget.Error) {
	min, max := enc.Range()
	if len(qual) > seqLen {
		qual = qual[:seqLen]
		truncated = true
	}
	for i, c := range qual {
		if int(c) < min || int(c) > max {
			return nil, false, false, errbudget.New(errbudget.CodeQualityOutOfRange, "", strconv.Itoa(int(c)))
		}
		_ = i
	}
	if len(qual) < seqLen {
		mid := byte(min + 30)
		padded2 := make([]byte, seqLen)
		copy(padded2, qual)
		for i := len(qual); i < seqLen; i++ {
			padded2[i] = mid
		}
		qual = padded2
		padded = true
	}
	return qual, padded, truncated, nil
}

// ParseNumericQuality parses a whitespace-separated list of signed
// integers (the numeric quality encoding), validating each value's
// range and applying the same pad/truncate rule as the Phred path.
func ParseNumericQuality(s string, seqLen int, enc Encoding) (scores []int8, padded, truncated bool, err *errbudget.Error) {
	min, max := enc.Range()
	fields := strings.Fields(s)
	if len(fields) > seqLen {
		fields = fields[:seqLen]
		truncated = true
	}
	scores = make([]int8, 0, seqLen)
	for _, tok := range fields {
		v, perr := strconv.Atoi(tok)
		if perr != nil || v < min || v > max {
			return nil, false, false, errbudget.New(errbudget.CodeQualityOutOfRange, "", tok)
		}
		scores = append(scores, int8(v))
	}
	if len(scores) < seqLen {
		mid := int8(min + 30)
		for len(scores) < seqLen {
			scores = append(scores, mid)
		}
		padded = true
	}
	return scores, padded, truncated, nil
}
