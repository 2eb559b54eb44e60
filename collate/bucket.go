// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package collate

import "sync"

// bucket is a sparse bit vector over the 32-bit hash space, grown
// lazily one word at a time. Grounded on the donor tree's
// circular.Bitmap word/bit split (deleted; its Set method keyed a
// []uintptr by word index and bit offset the same way), but backed by
// a map instead of a dense slice since collation buckets are
// addressed by the full, uniformly-distributed output of a 32-bit
// hash rather than a bounded coordinate range.
type bucket struct {
	mu    sync.Mutex
	words map[uint32]uint64
}

func newBucket() *bucket {
	return &bucket{words: make(map[uint32]uint64)}
}

// testAndSet sets bit idx and reports whether it was already set.
func (b *bucket) testAndSet(idx uint32) bool {
	wordIdx := idx / 64
	mask := uint64(1) << (idx % 64)

	b.mu.Lock()
	defer b.mu.Unlock()
	w := b.words[wordIdx]
	hit := w&mask != 0
	b.words[wordIdx] = w | mask
	return hit
}
