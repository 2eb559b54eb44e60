// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package errbudget

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBudgetThrottledWithinLimit(t *testing.T) {
	b := NewBudget(2)
	require.False(t, b.Record(New(CodeNoSequence, "1")))
	require.False(t, b.Record(New(CodeNoSequence, "2")))
	require.True(t, b.Record(New(CodeNoSequence, "3")))
	require.Equal(t, 3, b.CountOf(CodeNoSequence))
}

func TestBudgetStructuralAlwaysFatal(t *testing.T) {
	b := NewBudget(1000)
	require.True(t, b.Record(New(CodePlatformMismatch)))
}

func TestBudgetAssemblyAlwaysFatal(t *testing.T) {
	b := NewBudget(1000)
	require.True(t, b.Record(New(CodeDuplicateSpot, "X")))
}

func TestErrorLocation(t *testing.T) {
	e := New(CodeDeflineUnrecognized, "@bad")
	e.WithLocation("/tmp/a/reads.fastq", 42)
	require.Contains(t, e.Error(), "reads.fastq:42")
	require.Contains(t, e.Error(), "[code:100]")
}

func TestClassification(t *testing.T) {
	require.Equal(t, ClassResource, ClassOf(CodeFileNotFound))
	require.Equal(t, ClassAssembly, ClassOf(CodeDuplicateSpot))
	require.Equal(t, ClassInternal, ClassOf(CodeInternalQC))
	require.Equal(t, ClassStructural, ClassOf(CodeTenXMixed))
	require.Equal(t, ClassParse, ClassOf(CodeQualityBadChar))
}
