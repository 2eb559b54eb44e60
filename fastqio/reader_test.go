// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package fastqio

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReaderSingleLineRecord(t *testing.T) {
	r := NewReader(strings.NewReader("@A 1:N:0:X\nGATT\n+\n!!!!\n"))
	rec, err, ok := r.Next()
	require.True(t, ok)
	require.Nil(t, err)
	require.Equal(t, "@A 1:N:0:X", rec.Defline)
	require.Equal(t, "GATT", string(rec.Seq))
	require.Equal(t, "!!!!", string(rec.Qual))

	_, _, ok = r.Next()
	require.False(t, ok)
}

func TestReaderMultiLineSequence(t *testing.T) {
	r := NewReader(strings.NewReader("@A\nGA\nTT\n+\n!!!!\n"))
	rec, err, ok := r.Next()
	require.True(t, ok)
	require.Nil(t, err)
	require.Equal(t, "GATT", string(rec.Seq))
}

func TestReaderBlankLinesBetweenRecords(t *testing.T) {
	r := NewReader(strings.NewReader("\n\n@A\nGATT\n+\n!!!!\n"))
	rec, err, ok := r.Next()
	require.True(t, ok)
	require.Nil(t, err)
	require.Equal(t, "@A", rec.Defline)
}

func TestTranslateSequence(t *testing.T) {
	seq := []byte("acgun-X?.")
	idx := TranslateSequence(seq)
	require.Equal(t, -1, idx)
	require.Equal(t, "ACGTNNNNN", string(seq))
}

func TestValidateQualityPhredPad(t *testing.T) {
	out, padded, truncated, err := ValidateQualityPhred([]byte("!!"), 4, EncodingPhred33)
	require.Nil(t, err)
	require.True(t, padded)
	require.False(t, truncated)
	require.Len(t, out, 4)
}
