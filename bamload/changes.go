// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bamload

import (
	"sort"
	"sync"

	"github.com/grailbio/seqspot/writer"
)

// changeKind names one of the BAM loader's per-record discard/change
// categories, grounded on original_source's LOG_CHANGE(n) table. Only
// the kinds below are carried, keeping the original numbering, and
// processRecord records every one of them.
type changeKind struct {
	n      int
	name   string
	reason string
}

var (
	changeFlagPrimaryDup       = changeKind{2, "flag_changed_primary_dup", "secondary alignment: slot already holds a primary for this read number"}
	changeUnalignedLowMapQ     = changeKind{10, "unaligned_low_mapq", "mapQ below the alignment threshold"}
	changeUnalignedLowMatch    = changeKind{11, "unaligned_low_match_count", "too few matching bases to trust the alignment"}
	changeDiscardPCRDup        = changeKind{25, "discard_pcr_dup", "pcr-dup flag disagreed with the saved slot and acceptBadDups is false"}
	changeDiscardBadFragInfo   = changeKind{26, "discard_bad_fragment_info", "saved unmated flag disagreed with the incoming record"}
	changeDiscardSkipReference = changeKind{27, "discard_skip_reference", "reference reader asked to skip this reference"}
	changeDiscardUnknownRef    = changeKind{28, "discard_unknown_reference", "reference name not found in the BAM header"}
)

// changeCounter accumulates per-kind occurrence counts during a run,
// matching the original's in-memory tally before it is flushed once
// to CHANGES/<kind>_<n> at Close (spec §6).
type changeCounter struct {
	mu     sync.Mutex
	counts map[string]uint32
	kinds  map[string]changeKind
}

func newChangeCounter() *changeCounter {
	return &changeCounter{
		counts: make(map[string]uint32),
		kinds:  make(map[string]changeKind),
	}
}

func (c *changeCounter) record(k changeKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[k.name]++
	c.kinds[k.name] = k
}

// Flush writes one CHANGES/<kind>_<n> record per observed category.
func (c *changeCounter) Flush(dir string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, 0, len(c.counts))
	for name := range c.counts {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		k := c.kinds[name]
		rec := writer.ChangeRecord{Change: k.name, Reason: k.reason, Count: c.counts[name]}
		if err := writer.WriteChange(dir, k.name, k.n, rec); err != nil {
			return err
		}
	}
	return nil
}
