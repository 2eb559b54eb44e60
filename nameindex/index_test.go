// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package nameindex

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildDensityAndStability(t *testing.T) {
	names := []string{"B", "A", "B", "C", "A"}
	idx := Build(names, 2, 10)
	require.EqualValues(t, 3, idx.NumSpots)

	seen := map[uint32]bool{}
	for _, id := range idx.SpotID {
		require.True(t, id >= 1 && id <= idx.NumSpots)
		seen[id] = true
	}
	require.Len(t, seen, int(idx.NumSpots))

	require.Equal(t, idx.SpotID[0], idx.SpotID[2]) // both "B"
	require.Equal(t, idx.SpotID[1], idx.SpotID[4]) // both "A"

	lastCount := map[uint32]int{}
	for row, last := range idx.LastInSpot {
		if last {
			lastCount[idx.SpotID[row]]++
		}
	}
	for sid := uint32(1); sid <= idx.NumSpots; sid++ {
		require.Equal(t, 1, lastCount[sid])
	}
}

func TestBuildSingleWorker(t *testing.T) {
	names := []string{"X", "Y", "X", "Y", "Z"}
	idx := Build(names, 1, 10)
	require.EqualValues(t, 3, idx.NumSpots)
	require.Equal(t, idx.SpotID[0], idx.SpotID[2])
	require.Equal(t, idx.SpotID[1], idx.SpotID[3])
}

func TestHotSpotClassification(t *testing.T) {
	names := make([]string, 0)
	names = append(names, "far", "filler", "filler", "filler", "far")
	idx := Build(names, 1, 3)
	farID := idx.SpotID[0]
	require.False(t, idx.HotSpot[farID])
}
