// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package collate

import (
	"sync"

	"github.com/biogo/store/llrb"
	"github.com/grailbio/seqspot/errbudget"
)

// expectedSpotThreshold is the switch point from 4-bucket to 5-bucket
// mode, matching the donor C++ tree's spot_name_check::threshold.
const expectedSpotThreshold = 9e8

// pendingFlushSize is the number of accumulated oracle hits that
// triggers a verification scan against the full name vector.
const pendingFlushSize = 10000

// pendingTerm is a single oracle hit awaiting verification.
type pendingTerm struct {
	name string
	file string
	line int64
}

// Compare implements llrb.Comparable, ordering terms by name. Inserting
// a term whose name is already pending replaces the earlier entry, so
// repeated candidates for one name coalesce before verification.
func (t pendingTerm) Compare(c llrb.Comparable) int {
	o := c.(pendingTerm)
	if t.name < o.name {
		return -1
	}
	if t.name > o.name {
		return 1
	}
	return 0
}

// NameVector is the frozen, remapped set of spot names a Checker
// verifies candidate duplicates against (nameindex.Index.Names).
type NameVector interface {
	Count(name string) int
}

// Checker is the Collation Check (C10): a probabilistic seen-before
// oracle backed by a layered bit-vector, with a verified recheck
// against the full name vector once enough candidates have
// accumulated.
type Checker struct {
	buckets []*bucket
	fiveWay bool
	vector  NameVector
	budget  *errbudget.Budget

	mu      sync.Mutex
	pending llrb.Tree
	count   int
}

// NewChecker constructs a Checker sized for expectedSpots candidate
// names, verifying true duplicates against vector and recording fatal
// hits in budget.
func NewChecker(expectedSpots int64, vector NameVector, budget *errbudget.Budget) *Checker {
	fiveWay := float64(expectedSpots) >= expectedSpotThreshold
	n := 4
	if fiveWay {
		n = 5
	}
	buckets := make([]*bucket, n)
	for i := range buckets {
		buckets[i] = newBucket()
	}
	return &Checker{buckets: buckets, fiveWay: fiveWay, vector: vector, budget: budget}
}

// Observe records a spot name seen at (file, line). It returns an
// error only when the pending-list flush this observation triggers
// finds a verified true duplicate; the caller should continue to call
// Observe for every spot regardless of the prior result.
func (c *Checker) Observe(name, file string, line int64) *errbudget.Error {
	if !c.seenBefore(name) {
		return nil
	}

	c.mu.Lock()
	c.pending.Insert(pendingTerm{name: name, file: file, line: line})
	c.count++
	flush := c.count >= pendingFlushSize
	c.mu.Unlock()

	if !flush {
		return nil
	}
	return c.verify()
}

// Flush forces verification of any remaining pending candidates; call
// once after the name vector is fully built and no more names will be
// observed.
func (c *Checker) Flush() *errbudget.Error {
	return c.verify()
}

func (c *Checker) seenBefore(name string) bool {
	v := []byte(name)

	if c.fiveWay {
		words := sha1Words(v)
		hits := 0
		for i, w := range words {
			if c.buckets[i].testAndSet(w) {
				hits++
			}
		}
		return hits == 5
	}

	hits := 0
	lo, hi := splitLoHi(fnv1a64(v))
	if c.buckets[0].testAndSet(lo) {
		hits++
	}
	if c.buckets[1].testAndSet(hi) {
		hits++
	}
	mlo, mhi := splitLoHi(murmurHash64A(v))
	if c.buckets[2].testAndSet(mlo) {
		hits++
	}
	if c.buckets[3].testAndSet(mhi) {
		hits++
	}
	return hits == 4
}

// verify drains the pending list, counting each term's occurrences in
// the frozen name vector; terms with count > 1 are true duplicates.
func (c *Checker) verify() *errbudget.Error {
	c.mu.Lock()
	if c.count == 0 {
		c.mu.Unlock()
		return nil
	}
	terms := make([]pendingTerm, 0, c.count)
	c.pending.Do(func(cmp llrb.Comparable) (done bool) {
		terms = append(terms, cmp.(pendingTerm))
		return false
	})
	c.pending = llrb.Tree{}
	c.count = 0
	c.mu.Unlock()

	for _, t := range terms {
		if c.vector.Count(t.name) > 1 {
			err := errbudget.New(errbudget.CodeDuplicateSpot, t.name).WithLocation(t.file, t.line)
			if c.budget.Record(err) {
				return err
			}
		}
	}
	return nil
}
