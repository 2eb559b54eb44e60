// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package digest

import (
	"strings"
	"testing"

	"github.com/grailbio/seqspot/fastqio"
	"github.com/stretchr/testify/require"
)

func TestSampleBasic(t *testing.T) {
	data := "@A 1:N:0:X\nGATT\n+\n!!!!\n@B 1:N:0:X\nACGT\n+\n!!!!\n"
	r := fastqio.NewReader(strings.NewReader(data))
	pf, err := Sample("reads.fastq", r, int64(len(data)), 0)
	require.Nil(t, err)
	require.EqualValues(t, 2, pf.SpotsSampled)
	require.Equal(t, fastqio.EncodingPhred33, pf.Encoding)
}

func TestTenXDetection(t *testing.T) {
	require.True(t, tenXPattern.MatchString("sample_I1.fastq"))
	require.True(t, tenXReadPattern.MatchString("sample_R2.fastq"))
}
