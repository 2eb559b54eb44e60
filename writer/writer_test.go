// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package writer

import (
	"testing"
	"time"

	"github.com/grailbio/seqspot/defline"
	"github.com/grailbio/seqspot/spotstore"
	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/require"
)

func TestWriteSpotsAndClose(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	w := NewWriter(dir, Opts{})
	w.Write(Row{
		Spot: &spotstore.Spot{
			SpotName: "A",
			Reads: []spotstore.Read{
				{Sequence: []byte("GATT"), Quality: []byte{0, 0, 0, 0}, SpotGroup: "X"},
			},
		},
		Platform: defline.PlatformIllumina,
	})
	w.Write(Row{
		Spot: &spotstore.Spot{
			SpotName: "B",
			Reads: []spotstore.Read{
				{Sequence: []byte("ACGT"), Quality: []byte{0, 0, 0, 0}, SpotGroup: "X"},
			},
		},
		Platform: defline.PlatformIllumina,
	})
	require.NoError(t, w.Close())
	require.NotZero(t, w.OutputFingerprint())
}

func TestDropColumns(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	w := NewWriter(dir, Opts{DropColumns: []Column{ColChannel, ColReadNumber}})
	require.Nil(t, w.active(ColChannel))
	require.Nil(t, w.active(ColReadNumber))
	require.NotNil(t, w.active(ColName))
	require.NoError(t, w.Close())
}

func TestMetadataFiles(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	require.NoError(t, WriteFileFingerprint(dir, 0, "reads_1.fastq.gz", 0xdeadbeef, "fastq"))
	require.NoError(t, WriteCurrentFingerprint(dir, 0xcafef00d, "seqspot", time.Unix(0, 0)))
	require.NoError(t, WriteBAMHeader(dir, []byte("@HD\tVN:1.6\n")))
	require.NoError(t, WriteChange(dir, "platform_mismatch", 0, ChangeRecord{Change: "dropped", Reason: "platform mismatch", Count: 3}))
}

func TestColumnStringRoundTrip(t *testing.T) {
	c, err := ParseColumn("READ_TYPE")
	require.NoError(t, err)
	require.Equal(t, ColReadType, c)
	require.Equal(t, "READ_TYPE", ColReadType.String())
}
