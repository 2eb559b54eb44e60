// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package keyindex

import (
	"encoding/binary"
	"path/filepath"
	"sync"

	"modernc.org/kv"
	"v.io/x/lib/vlog"
)

// LegacyIndex is the single-tree mode used when the number of
// read-groups exceeds 255 (spec §4.7): there is exactly one tree
// (partition 0), and the stored name is "<rg>\t<name>".
//
// Open question (DESIGN.md): the original cache-sizing constant for
// this mode is documented as "proportional" to the partitioned
// formula but with an undocumented factor; this implementation uses
// the same 0.375 numerator without the /max_open_trees divisor, since
// there is exactly one tree to size for.
type LegacyIndex struct {
	mu      sync.Mutex
	db      *kv.DB
	counter uint32

	cacheCap  int
	cache     map[string]uint32
	cacheFIFO []string
}

// OpenLegacy creates the single legacy tree under dir. As in Index,
// the computed cache budget backs a bounded in-process lookup cache
// rather than a modernc.org/kv option, since kv.Options has no
// cache-size knob to pass it through to.
func OpenLegacy(dir string, globalCacheBytes int64) (*LegacyIndex, error) {
	path := filepath.Join(dir, "legacy.kv")
	opts := &kv.Options{}
	db, err := kv.Create(path, opts)
	if err != nil {
		db, err = kv.Open(path, opts)
		if err != nil {
			return nil, err
		}
	}
	vlog.Log.Infof("keyindex: legacy single-tree mode, cache=%d MiB", legacyCacheSize(globalCacheBytes)/(1<<20))
	return &LegacyIndex{
		db:       db,
		cacheCap: int(legacyCacheSize(globalCacheBytes) / entryCacheCost),
		cache:    make(map[string]uint32),
	}, nil
}

func legacyCacheSize(global int64) int64 {
	raw := int64(0.375 * float64(global))
	const mb = 1 << 20
	return ((raw + mb - 1) / mb) * mb
}

// composeLegacyName builds "<rg>\t<name>".
func composeLegacyName(readGroup, name []byte) []byte {
	buf := make([]byte, 0, len(readGroup)+1+len(name))
	buf = append(buf, readGroup...)
	buf = append(buf, '\t')
	buf = append(buf, name...)
	return buf
}

// Lookup mirrors Index.Lookup but always routes to the single tree,
// keyed by "<rg>\t<name>", with tree id fixed at 0.
func (l *LegacyIndex) Lookup(readGroup, name []byte) (key Key, wasInserted bool, err error) {
	composite := composeLegacyName(readGroup, name)
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cacheCap > 0 {
		if counter, ok := l.cache[string(composite)]; ok {
			return NewKey(0, counter), false, nil
		}
	}

	val, err := l.db.Get(nil, composite)
	if err != nil {
		return 0, false, err
	}
	if val != nil {
		counter := binary.BigEndian.Uint32(val)
		l.cachePut(composite, counter)
		return NewKey(0, counter), false, nil
	}
	counter := l.counter
	l.counter++
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, counter)
	if err := l.db.Set(composite, buf); err != nil {
		return 0, false, err
	}
	l.cachePut(composite, counter)
	return NewKey(0, counter), true, nil
}

// cachePut records composite's counter under l.mu (held by all
// callers), evicting the oldest entry (FIFO) once cacheCap is reached.
func (l *LegacyIndex) cachePut(composite []byte, counter uint32) {
	if l.cacheCap <= 0 {
		return
	}
	key := string(composite)
	if _, exists := l.cache[key]; !exists {
		if len(l.cacheFIFO) >= l.cacheCap {
			oldest := l.cacheFIFO[0]
			l.cacheFIFO = l.cacheFIFO[1:]
			delete(l.cache, oldest)
		}
		l.cacheFIFO = append(l.cacheFIFO, key)
	}
	l.cache[key] = counter
}

func (l *LegacyIndex) Close() error { return l.db.Close() }
