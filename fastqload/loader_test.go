// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package fastqload

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/seqspot/config"
	"github.com/grailbio/seqspot/errbudget"
	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/require"
)

func writeFastq(t *testing.T, dir, name, content string) string {
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoaderSingleFileRun(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	r1 := writeFastq(t, dir, "reads.fastq",
		"@A\nGATTACA\n+\n!!!!!!!\n"+
			"@B\nACGTACG\n+\n!!!!!!!\n")

	cfg := config.Default()
	cfg.Read1PairFiles = [][]string{{r1}}

	budget := errbudget.NewBudget(cfg.MaxErrCount)
	loader := New(cfg, budget)

	outDir := filepath.Join(dir, "out")
	report, err := loader.Run(outDir)
	require.NoError(t, err)
	require.EqualValues(t, 2, report.AssembledSpots)
	require.Len(t, report.Groups, 1)
}

func TestLoaderTwoFilePairedRun(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	r1 := writeFastq(t, dir, "r1.fastq", "@X:1:1:1:1/1\nGATT\n+\n!!!!\n")
	r2 := writeFastq(t, dir, "r2.fastq", "@X:1:1:1:1/2\nACGT\n+\n!!!!\n")

	cfg := config.Default()
	cfg.Read1PairFiles = [][]string{{r1}}
	cfg.Read2PairFiles = [][]string{{r2}}

	budget := errbudget.NewBudget(cfg.MaxErrCount)
	loader := New(cfg, budget)

	outDir := filepath.Join(dir, "out")
	report, err := loader.Run(outDir)
	require.NoError(t, err)
	require.EqualValues(t, 1, report.AssembledSpots)
	require.Equal(t, int64(2), report.ReadsPerSpotHistogram[2])
}

func TestBuildFileListInconsistentGroups(t *testing.T) {
	cfg := config.Default()
	cfg.Read1PairFiles = [][]string{{"a"}, {"b"}}
	cfg.Read2PairFiles = [][]string{{"c"}}

	_, err := buildFileList(cfg)
	require.NotNil(t, err)
	require.Equal(t, errbudget.CodeInconsistentGroups, err.Code)
}

func TestBuildFileListMismatchedPairLists(t *testing.T) {
	cfg := config.Default()
	cfg.Read1PairFiles = [][]string{{"a", "b"}}
	cfg.Read2PairFiles = [][]string{{"c"}}

	_, err := buildFileList(cfg)
	require.NotNil(t, err)
	require.Equal(t, errbudget.CodeMismatchedPairLists, err.Code)
}
