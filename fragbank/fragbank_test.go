// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package fragbank

import (
	"testing"

	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/require"
)

func TestAllocReadWriteRoundTrip(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	bank, err := Open(dir, 1<<20, 4<<20)
	require.NoError(t, err)
	defer bank.Close()

	id, err := bank.Alloc([]byte("GATTACA"), []byte("!!!!!!!"), []byte("BC01"), true)
	require.NoError(t, err)
	require.True(t, isHot(id))

	seq, qual, sg, err := bank.Read(id)
	require.NoError(t, err)
	require.Equal(t, "GATTACA", string(seq))
	require.Equal(t, "!!!!!!!", string(qual))
	require.Equal(t, "BC01", string(sg))
}

func TestFreeAndReuse(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	bank, err := Open(dir, 1<<20, 4<<20)
	require.NoError(t, err)
	defer bank.Close()

	id, err := bank.Alloc([]byte("AC"), []byte("!!"), nil, false)
	require.NoError(t, err)
	bank.Free(id)

	id2, err := bank.Alloc([]byte("GT"), []byte("!!"), nil, false)
	require.NoError(t, err)
	require.Equal(t, id, id2)
}
