// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package pipeline

import (
	"sync"
	"testing"

	"github.com/grailbio/seqspot/nameindex"
	"github.com/grailbio/seqspot/spotstore"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu    sync.Mutex
	spots []spotstore.Spot
}

func (w *fakeWriter) WriteSpot(s spotstore.Spot) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.spots = append(w.spots, s)
	return nil
}

type fakeTelemetry struct{ n int32 }

func (t *fakeTelemetry) RecordSpot(spotstore.Spot) { t.n++ }

func TestPipelineSingleReadSpots(t *testing.T) {
	names := []string{"A", "B"}
	idx := nameindex.Build(names, 1, 10)
	store := spotstore.NewStore(4, 10)
	w := &fakeWriter{}
	tel := &fakeTelemetry{}
	p := New(idx, store, w, tel, 10)

	for row, name := range names {
		p.Submit(ReadItem{Row: row, Read: spotstore.Read{SpotName: name, Sequence: []byte("ACGT"), Quality: []byte{30, 30, 30, 30}}})
	}
	p.CloseInput()
	err := p.Run()
	require.NoError(t, err)
	require.Len(t, w.spots, 2)
}

func TestAssignReadTypesDedup(t *testing.T) {
	spot := spotstore.Spot{Reads: []spotstore.Read{
		{ReadNum: "1", Sequence: []byte("AC"), Quality: []byte{1, 2}},
		{ReadNum: "1", Sequence: []byte("AC"), Quality: []byte{1, 2}},
		{ReadNum: "2", Sequence: []byte("GT"), Quality: []byte{1, 2}},
	}}
	assignReadTypesAndDedup(&spot)
	require.Len(t, spot.Reads, 2)
}
