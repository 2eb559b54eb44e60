// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package spotstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestColdStoreRoundTrip(t *testing.T) {
	cs := NewColdStore(4)
	r := Read{Sequence: []byte("GATTACA"), Quality: []byte{30, 31, 32, 33, 30, 29, 28}}
	require.NoError(t, cs.Append(1, 0, r))
	got, ok := cs.Reconstruct(1, 0)
	require.True(t, ok)
	require.Equal(t, string(r.Sequence), string(got.Sequence))
	require.Equal(t, r.Quality, got.Quality)
}

func TestHotStoreAppendTake(t *testing.T) {
	hs := NewHotStore()
	hs.Append(5, Read{SpotName: "a"})
	hs.Append(5, Read{SpotName: "a"})
	reads := hs.Take(5)
	require.Len(t, reads, 2)
	require.Empty(t, hs.Take(5))
}

func TestStoreAssembleCold(t *testing.T) {
	s := NewStore(4, 10)
	r0 := Read{SpotName: "s", Sequence: []byte("AC"), Quality: []byte{30, 31}}
	require.NoError(t, s.Save(1, 0, false, r0))
	last := Read{SpotName: "s", Sequence: []byte("GT"), Quality: []byte{30, 31}}
	spot := s.Assemble(1, false, last)
	require.Len(t, spot.Reads, 2)
}
