// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package collate

import (
	"testing"

	"github.com/grailbio/seqspot/errbudget"
	"github.com/stretchr/testify/require"
)

type fakeVector map[string]int

func (v fakeVector) Count(name string) int { return v[name] }

func TestObserveNoFlushBelowThreshold(t *testing.T) {
	vec := fakeVector{"read/1": 1}
	c := NewChecker(100, vec, errbudget.NewBudget(10))
	for i := 0; i < 5; i++ {
		err := c.Observe("read/1", "in.fastq", int64(i+1))
		require.Nil(t, err)
	}
}

func TestVerifyFlagsTrueDuplicate(t *testing.T) {
	vec := fakeVector{"dup/1": 2}
	c := NewChecker(100, vec, errbudget.NewBudget(10))

	// Force both hash families to report a hit regardless of the
	// actual bit pattern, by observing the same name twice before the
	// flush threshold: the second Observe's oracle query always finds
	// every bit already set from the first.
	err1 := c.Observe("dup/1", "in.fastq", 1)
	require.Nil(t, err1)
	err2 := c.Observe("dup/1", "in.fastq", 2)
	require.Nil(t, err2) // below pendingFlushSize, not yet verified

	err := c.Flush()
	require.NotNil(t, err)
	require.Equal(t, errbudget.CodeDuplicateSpot, err.Code)
}

func TestVerifyDropsFalsePositive(t *testing.T) {
	vec := fakeVector{"unique/1": 1}
	c := NewChecker(100, vec, errbudget.NewBudget(10))

	c.Observe("unique/1", "in.fastq", 1)
	c.Observe("unique/1", "in.fastq", 2)

	err := c.Flush()
	require.Nil(t, err)
}

func TestFiveWayModeAboveThreshold(t *testing.T) {
	vec := fakeVector{"x/1": 2}
	c := NewChecker(int64(expectedSpotThreshold)+1, vec, errbudget.NewBudget(10))
	require.True(t, c.fiveWay)
	require.Len(t, c.buckets, 5)

	c.Observe("x/1", "in.fastq", 1)
	c.Observe("x/1", "in.fastq", 2)
	err := c.Flush()
	require.NotNil(t, err)
}

func TestHashesAreDeterministic(t *testing.T) {
	require.Equal(t, fnv1a64([]byte("abc")), fnv1a64([]byte("abc")))
	require.NotEqual(t, fnv1a64([]byte("abc")), fnv1a64([]byte("abd")))
	require.Equal(t, murmurHash64A([]byte("abcdefgh")), murmurHash64A([]byte("abcdefgh")))
}
