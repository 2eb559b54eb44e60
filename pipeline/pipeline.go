// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package pipeline implements the six-stage bounded producer-consumer
// pipeline (C6): read -> validate -> save-or-emit -> assemble -> write
// -> telemetry, plus a cleanup stage that frees Spot Store slots in
// batches. Each stage is its own goroutine bound to the next stage's
// queue, so a slow stage applies back-pressure to every stage behind
// it rather than stalling the whole pipeline in lockstep.
package pipeline

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/grailbio/base/sync/multierror"
	"github.com/grailbio/seqspot/errbudget"
	"github.com/grailbio/seqspot/nameindex"
	"github.com/grailbio/seqspot/spotstore"
)

// Queue capacities, spec §4.6.
const (
	capRead             = 5120
	capValidate         = 1024
	capSaveSpot         = 1024
	capAssembleSpot     = 2048
	capUpdateTelemetry  = 2048
	capClearSpot        = 1024
)

// ReadItem travels on the read/validate queues: one raw record plus
// its originating reader index and line number, needed to break ties
// when two reads lack explicit read numbers (spec §3 Spot ordering
// rule: "(reader-index, line-number)").
type ReadItem struct {
	Row        int // index into the name index / spot-id assignment
	ReaderID   uint16
	LineNumber int64
	Read       spotstore.Read
}

// assembleItem travels on the assemble_spot queue: a fully ordered,
// deduplicated, type-assigned Spot ready for the writer.
type assembleItem struct {
	spotID uint32
	spot   spotstore.Spot
}

// Writer is the Writer Adapter collaborator (C12); pipeline depends
// only on this narrow interface so it can be swapped in tests.
type Writer interface {
	WriteSpot(spotstore.Spot) error
}

// Telemetry receives each assembled spot for accounting (spec §4.6
// "hand the assembled spot to telemetry for accounting").
type Telemetry interface {
	RecordSpot(spotstore.Spot)
}

// Pipeline wires the six queues and their stage goroutines.
type Pipeline struct {
	Index     *nameindex.Index
	Store     *spotstore.Store
	Writer    Writer
	Telemetry Telemetry
	BatchSize int

	readCh            chan ReadItem
	validateCh        chan ReadItem
	saveCh            chan ReadItem
	assembleCh        chan assembleItem
	updateTelemetryCh chan assembleItem
	clearCh           chan clearItem

	cancelled int32
	errs      *multierror.MultiError
	wg        sync.WaitGroup

	pendingMu sync.Mutex
	pending   map[uint32][]ReadItem // reads seen so far for a spot not yet last
}

type clearItem struct {
	spotID uint32
	hot    bool
}

// New creates a Pipeline bound to idx (the frozen name index from
// C4), store (C5), w (C12), and tel (telemetry accounting).
func New(idx *nameindex.Index, store *spotstore.Store, w Writer, tel Telemetry, batchSize int) *Pipeline {
	return &Pipeline{
		Index:             idx,
		Store:             store,
		Writer:            w,
		Telemetry:         tel,
		BatchSize:         batchSize,
		readCh:            make(chan ReadItem, capRead),
		validateCh:        make(chan ReadItem, capValidate),
		saveCh:            make(chan ReadItem, capSaveSpot),
		assembleCh:        make(chan assembleItem, capAssembleSpot),
		updateTelemetryCh: make(chan assembleItem, capUpdateTelemetry),
		clearCh:           make(chan clearItem, capClearSpot),
		errs:              multierror.NewMultiError(8),
		pending:           make(map[uint32][]ReadItem),
	}
}

// Cancelled reports whether any stage has failed; all stages check
// this on every dequeue and drain-and-exit when set (spec §5).
func (p *Pipeline) Cancelled() bool { return atomic.LoadInt32(&p.cancelled) != 0 }

func (p *Pipeline) cancel(err error) {
	p.errs.Add(err)
	atomic.StoreInt32(&p.cancelled, 1)
}

// Submit enqueues one read for validation; it blocks (spin-yield per
// spec §5) while the read queue is full and the pipeline is not
// cancelled.
func (p *Pipeline) Submit(item ReadItem) {
	for {
		if p.Cancelled() {
			return
		}
		select {
		case p.readCh <- item:
			return
		case <-time.After(time.Millisecond):
		}
	}
}

// CloseInput signals that no more reads will be submitted.
func (p *Pipeline) CloseInput() { close(p.readCh) }

// Run starts the six stages and blocks until all queues drain or the
// pipeline is cancelled. It returns the first error raised by any
// stage, matching spec §5's "re-raised on the main thread via future
// join".
func (p *Pipeline) Run() error {
	p.wg.Add(6)
	go p.validateStage()
	go p.saveOrEmitStage()
	go p.assembleStage()
	go p.writeStage()
	go p.telemetryStage()
	go p.cleanupStage()
	p.wg.Wait()
	return p.errs.ErrorOrNil()
}

func (p *Pipeline) validateStage() {
	defer close(p.validateCh)
	defer p.wg.Done()
	for item := range p.readCh {
		if p.Cancelled() {
			return
		}
		p.validateCh <- item
	}
}

// saveOrEmitStage implements §4.6's save-or-emit rule: consult
// last_in_spot; if not last, buffer the read and stop (the spot isn't
// ready yet); if last, forward the read onto save_spot so the
// assembleStage can build the completed spot.
func (p *Pipeline) saveOrEmitStage() {
	defer close(p.saveCh)
	defer p.wg.Done()
	for item := range p.validateCh {
		if p.Cancelled() {
			return
		}
		row := item.Row
		spotID := p.Index.SpotID[row]
		hot := p.Index.HotSpot[spotID]
		buffered := len(p.bufferedCount(spotID))
		if buffered >= p.Store.MaxSlots {
			p.cancel(errbudget.New(errbudget.CodeTooManyReads, item.Read.SpotName))
			return
		}
		if !p.Index.LastInSpot[row] {
			if err := p.Store.Save(spotID, buffered, hot, item.Read); err != nil {
				p.cancel(err)
				return
			}
			p.addPending(spotID, item)
			continue
		}
		p.saveCh <- item
	}
}

// assembleStage consumes save_spot's last-in-spot reads, assembles the
// completed spot against the reads buffered by saveOrEmitStage, and
// pushes it onto assemble_spot for the writer.
func (p *Pipeline) assembleStage() {
	defer close(p.assembleCh)
	defer p.wg.Done()
	for item := range p.saveCh {
		if p.Cancelled() {
			return
		}
		row := item.Row
		spotID := p.Index.SpotID[row]
		hot := p.Index.HotSpot[spotID]
		spot := p.Store.Assemble(spotID, hot, item.Read)
		p.clearPending(spotID)
		assignReadTypesAndDedup(&spot)
		p.assembleCh <- assembleItem{spotID: spotID, spot: spot}
	}
}

func (p *Pipeline) bufferedCount(spotID uint32) []ReadItem {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	return p.pending[spotID]
}

func (p *Pipeline) addPending(spotID uint32, item ReadItem) {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	p.pending[spotID] = append(p.pending[spotID], item)
}

func (p *Pipeline) clearPending(spotID uint32) {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	delete(p.pending, spotID)
}

// writeStage consumes assemble_spot and hands each written spot to
// update_telemetry rather than recording it inline, so a slow
// telemetry accumulator applies back-pressure to the writer queue
// instead of blocking inside the write call itself.
func (p *Pipeline) writeStage() {
	defer close(p.updateTelemetryCh)
	defer p.wg.Done()
	for item := range p.assembleCh {
		if p.Cancelled() {
			return
		}
		if err := p.Writer.WriteSpot(item.spot); err != nil {
			p.cancel(err)
			return
		}
		p.updateTelemetryCh <- item
	}
}

// telemetryStage consumes update_telemetry, records each spot for
// accounting (spec §4.6 "hand the assembled spot to telemetry for
// accounting"), and forwards it to clear_spot so cleanupStage can free
// its Spot Store slots.
func (p *Pipeline) telemetryStage() {
	defer close(p.clearCh)
	defer p.wg.Done()
	for item := range p.updateTelemetryCh {
		if p.Cancelled() {
			return
		}
		p.Telemetry.RecordSpot(item.spot)
		p.clearCh <- clearItem{spotID: item.spotID, hot: p.Index.HotSpot[item.spotID]}
	}
}

func (p *Pipeline) cleanupStage() {
	defer p.wg.Done()
	batch := make([]clearItem, 0, p.BatchSize)
	flush := func() {
		for _, c := range batch {
			p.Store.Clear(c.spotID, c.hot)
		}
		batch = batch[:0]
	}
	for item := range p.clearCh {
		batch = append(batch, item)
		if len(batch) >= p.BatchSize {
			flush()
		}
	}
	flush()
}
