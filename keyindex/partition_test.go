// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package keyindex

import (
	"testing"

	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/require"
)

func TestLookupInsertsOnce(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	idx, err := Open(dir, 1<<30)
	require.NoError(t, err)
	defer idx.Close()

	k1, inserted1, err := idx.Lookup([]byte("read-A"))
	require.NoError(t, err)
	require.True(t, inserted1)

	k2, inserted2, err := idx.Lookup([]byte("read-A"))
	require.NoError(t, err)
	require.False(t, inserted2)
	require.Equal(t, k1, k2)
}

func TestCacheSizeRounding(t *testing.T) {
	sz := cacheSize(4096<<20, 256)
	require.True(t, sz%(1<<20) == 0)
}
