// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package arena

import (
	"testing"

	"github.com/grailbio/seqspot/keyindex"
	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/require"
)

func TestPutGetSlotRoundTrip(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	tbl, err := Open(dir)
	require.NoError(t, err)
	defer tbl.Close()

	key := keyindex.NewKey(3, 42)
	s := Slot{PrimaryID: [2]int64{100, -1}, SpotID: 7, FragmentID: 9, Platform: 1, Flags: FlagUnmated}
	require.NoError(t, tbl.PutSlot(key, s))

	got, err := tbl.GetSlot(key)
	require.NoError(t, err)
	require.Equal(t, s.SpotID, got.SpotID)
	require.Equal(t, s.PrimaryID, got.PrimaryID)
	require.Equal(t, s.Flags, got.Flags)
}

func TestIncrAlignCountSaturates(t *testing.T) {
	var c uint8
	for i := 0; i < 300; i++ {
		IncrAlignCount(&c, 1)
	}
	require.EqualValues(t, 254, c)
}
