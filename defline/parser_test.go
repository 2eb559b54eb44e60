// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package defline

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseIlluminaNew(t *testing.T) {
	p := NewParser("reads.fastq")
	f, err := p.Parse("@A 1:N:0:X", 1)
	require.Nil(t, err)
	require.Equal(t, "IlluminaNewShort", f.MatcherName)
	require.Equal(t, "A", f.SpotName)
	require.Equal(t, "X", f.SpotGroup)
}

func TestParseCatchAll(t *testing.T) {
	p := NewParser("reads.fastq")
	f, err := p.Parse("@simplename", 1)
	require.Nil(t, err)
	require.Equal(t, "simplename", f.SpotName)
}

func TestParseUnrecognizedRedactsLine(t *testing.T) {
	p := NewParser("reads.fastq")
	_, err := p.Parse("", 5)
	require.NotNil(t, err)
	require.NotContains(t, err.Error(), "@")
	require.Contains(t, err.Error(), "reads.fastq:5")
}

func TestNanoporePostProcessing(t *testing.T) {
	p := NewParser("/data/pass/barcode05/reads.fastq")
	f, err := p.Parse("@channel_12_read_34 extra", 1)
	require.Nil(t, err)
	require.Equal(t, "Nanopore1", f.MatcherName)
	require.Equal(t, "12", f.Channel)
	require.Equal(t, "34", f.NanoporeReadNo)
	require.Equal(t, ReadFilterPass, f.ReadFilter)
	require.Equal(t, "BC05", f.SpotGroup)
}

func TestLastSuccessfulFirstCache(t *testing.T) {
	p := NewParser("reads.fastq")
	_, err := p.Parse("@A 1:N:0:X", 1)
	require.Nil(t, err)
	before := p.lastIdx
	_, err = p.Parse("@B 1:N:0:X", 2)
	require.Nil(t, err)
	require.Equal(t, before, p.lastIdx)
}
