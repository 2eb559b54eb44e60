// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package keyindex implements the Key-Partitioned B-Tree (C7): 256
// on-disk B-trees routed by an 8-bit hash of (qname, read-group),
// assigning dense 64-bit keys whose high 32 bits are the partition
// and low 32 bits are a per-partition counter.
package keyindex

import (
	"encoding/binary"
	"hash/fnv"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"modernc.org/kv"
)

const numPartitions = 256

// Key is the composite 64-bit key of §4.7: (partition<<32)|counter.
type Key uint64

func NewKey(partition uint8, counter uint32) Key {
	return Key(uint64(partition)<<32 | uint64(counter))
}

func (k Key) Partition() uint8  { return uint8(k >> 32) }
func (k Key) Counter() uint32   { return uint32(k) }

// Route selects a partition for name by folding a 64-bit FNV-1a hash
// to 8 bits, per §4.7.
func Route(name []byte) uint8 {
	h := fnv.New64a()
	_, _ = h.Write(name)
	sum := h.Sum64()
	return uint8(sum ^ (sum >> 32) ^ (sum >> 16) ^ (sum >> 8))
}

// Index owns the 256 on-disk B-trees (the single-tree legacy mode is
// the separate LegacyIndex type in legacy.go), plus a bounded
// in-process cache of recent name
// lookups per partition (see cacheGet/cachePut) to accelerate repeat
// lookups.
type Index struct {
	dir        string
	cacheBytes int64
	cacheCap   int
	trees      [numPartitions]*kv.DB
	mu         [numPartitions]sync.Mutex
	counters   [numPartitions]uint32

	cacheMu   [numPartitions]sync.Mutex
	cache     [numPartitions]map[string]uint32
	cacheFIFO [numPartitions][]string
}

// entryCacheCost approximates the retained bytes per cached lookup
// (key string header + counter + map/slice bookkeeping), used to turn
// the §4.7 byte budget into an entry-count bound for the per-partition
// lookup cache below.
const entryCacheCost = 64

// Open creates (or reuses) the 256 partition files under dir. The
// per-tree page-cache budget computed by cacheSize is realized as a
// bounded in-process cache of recent name lookups (modernc.org/kv's
// Options exposes no cache-size knob of its own), consulted by Lookup
// ahead of the on-disk tree.
func Open(dir string, globalCacheBytes int64) (*Index, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	idx := &Index{
		dir:        dir,
		cacheBytes: globalCacheBytes,
		cacheCap:   int(cacheSize(globalCacheBytes, numPartitions) / entryCacheCost),
	}
	for i := range idx.cache {
		idx.cache[i] = make(map[string]uint32)
	}
	return idx, nil
}

// cacheSize implements §4.7's formula: each B-tree's page cache is
// floor(0.375*global_cache_size / max_open_trees), rounded up to a
// 2^20 boundary.
func cacheSize(global int64, maxOpenTrees int) int64 {
	if maxOpenTrees <= 0 {
		maxOpenTrees = 1
	}
	raw := int64(0.375 * float64(global) / float64(maxOpenTrees))
	const mb = 1 << 20
	return ((raw + mb - 1) / mb) * mb
}

func (idx *Index) treeFor(partition uint8) (*kv.DB, error) {
	idx.mu[partition].Lock()
	defer idx.mu[partition].Unlock()
	if idx.trees[partition] != nil {
		return idx.trees[partition], nil
	}
	path := filepath.Join(idx.dir, "partition."+strconv.Itoa(int(partition))+".kv")
	opts := &kv.Options{}
	db, err := kv.Create(path, opts)
	if err != nil {
		db, err = kv.Open(path, opts)
		if err != nil {
			return nil, err
		}
	}
	idx.trees[partition] = db
	return db, nil
}

// cacheGet consults the bounded per-partition lookup cache.
func (idx *Index) cacheGet(partition uint8, name []byte) (uint32, bool) {
	if idx.cacheCap <= 0 {
		return 0, false
	}
	idx.cacheMu[partition].Lock()
	defer idx.cacheMu[partition].Unlock()
	counter, ok := idx.cache[partition][string(name)]
	return counter, ok
}

// cachePut records name's counter, evicting the oldest entry (FIFO)
// once the partition's cache reaches cacheCap.
func (idx *Index) cachePut(partition uint8, name []byte, counter uint32) {
	if idx.cacheCap <= 0 {
		return
	}
	idx.cacheMu[partition].Lock()
	defer idx.cacheMu[partition].Unlock()
	key := string(name)
	if _, exists := idx.cache[partition][key]; !exists {
		if len(idx.cacheFIFO[partition]) >= idx.cacheCap {
			oldest := idx.cacheFIFO[partition][0]
			idx.cacheFIFO[partition] = idx.cacheFIFO[partition][1:]
			delete(idx.cache[partition], oldest)
		}
		idx.cacheFIFO[partition] = append(idx.cacheFIFO[partition], key)
	}
	idx.cache[partition][key] = counter
}

// Lookup maps name (qname, with read-group prefix appended if the
// qname does not already start with the read-group tag) to its
// composite key, inserting a new counter value if absent.
func (idx *Index) Lookup(name []byte) (key Key, wasInserted bool, err error) {
	partition := Route(name)

	if counter, ok := idx.cacheGet(partition, name); ok {
		return NewKey(partition, counter), false, nil
	}

	db, err := idx.treeFor(partition)
	if err != nil {
		return 0, false, err
	}
	idx.mu[partition].Lock()
	defer idx.mu[partition].Unlock()

	val, err := db.Get(nil, name)
	if err != nil {
		return 0, false, err
	}
	if val != nil {
		counter := binary.BigEndian.Uint32(val)
		idx.cachePut(partition, name, counter)
		return NewKey(partition, counter), false, nil
	}
	counter := idx.counters[partition]
	idx.counters[partition]++
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, counter)
	if err := db.Set(name, buf); err != nil {
		return 0, false, err
	}
	idx.cachePut(partition, name, counter)
	return NewKey(partition, counter), true, nil
}

// Close closes every opened partition tree.
func (idx *Index) Close() error {
	var firstErr error
	for i := range idx.trees {
		if idx.trees[i] == nil {
			continue
		}
		if err := idx.trees[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
