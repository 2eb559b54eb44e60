// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bamload

import (
	"path/filepath"
	"testing"

	"github.com/grailbio/hts/sam"
	"github.com/grailbio/seqspot/arena"
	"github.com/grailbio/seqspot/biopb"
	"github.com/grailbio/seqspot/config"
	"github.com/grailbio/seqspot/defline"
	"github.com/grailbio/seqspot/errbudget"
	"github.com/grailbio/seqspot/fragbank"
	"github.com/grailbio/seqspot/keyindex"
	"github.com/grailbio/seqspot/spotstore"
	"github.com/grailbio/seqspot/writer"
	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/require"
)

// recordingSink is a spotSink that keeps every written spot in memory,
// standing in for writer.Writer in tests that only care about the
// loader's own decisions.
type recordingSink struct {
	rows []spotstore.Spot
}

func (s *recordingSink) Write(r writer.Row) {
	if r.Spot != nil {
		s.rows = append(s.rows, *r.Spot)
	}
}
func (s *recordingSink) Err() error   { return nil }
func (s *recordingSink) Close() error { return nil }

// testLoader bundles a Loader with its on-disk stores and a
// recordingSink, exposing the written spots through written().
type testLoader struct {
	*Loader
	sink *recordingSink
}

func (tl *testLoader) written() []spotstore.Spot { return tl.sink.rows }

func (tl *testLoader) closeStores() {
	tl.keys.Close()
	tl.table.Close()
	tl.frags.Close()
}

func newLoaderWithStores(t *testing.T, dir string) *testLoader {
	cfg := config.Default()
	budget := errbudget.NewBudget(cfg.MaxErrCount)
	l := New(cfg, budget)

	var err error
	l.keys, err = keyindex.Open(filepath.Join(dir, "KEYINDEX"), int64(cfg.CacheSizeMiB)<<20)
	require.NoError(t, err)
	l.table, err = arena.Open(filepath.Join(dir, "ARENA"))
	require.NoError(t, err)
	l.frags, err = fragbank.Open(filepath.Join(dir, "FRAGBANK"), 1<<20, 4<<20)
	require.NoError(t, err)

	sink := &recordingSink{}
	l.w = sink
	return &testLoader{Loader: l, sink: sink}
}

func unmatedRecord(name, seq string) *sam.Record {
	return &sam.Record{
		Name:  name,
		Pos:   -1,
		Flags: sam.Unmapped,
		Seq:   sam.NewSeq([]byte(seq)),
		Qual:  make([]byte, len(seq)),
	}
}

func mateRecord(name, seq string, readFlag sam.Flags) *sam.Record {
	return &sam.Record{
		Name:  name,
		Pos:   -1,
		Flags: sam.Paired | sam.Unmapped | sam.MateUnmapped | readFlag,
		Seq:   sam.NewSeq([]byte(seq)),
		Qual:  make([]byte, len(seq)),
	}
}

func alignedRecord(name, seq string, ref *sam.Reference, pos int, mapQ byte, readFlag sam.Flags) *sam.Record {
	return &sam.Record{
		Name:  name,
		Ref:   ref,
		Pos:   pos,
		MapQ:  mapQ,
		Flags: readFlag,
		Seq:   sam.NewSeq([]byte(seq)),
		Qual:  make([]byte, len(seq)),
	}
}

func TestClassifyUnmatedUnaligned(t *testing.T) {
	rec := unmatedRecord("r1", "GATTACA")
	cls := classify(rec)
	require.True(t, cls.unmated)
	require.False(t, cls.aligned)
	require.True(t, cls.primary)
	require.Equal(t, 0, cls.readNum)
}

func TestClassifyMatePair(t *testing.T) {
	r1 := mateRecord("r2", "GATT", sam.Read1)
	r2 := mateRecord("r2", "ACGT", sam.Read2)
	require.Equal(t, 1, classify(r1).readNum)
	require.Equal(t, 2, classify(r2).readNum)
	require.False(t, classify(r1).unmated)
}

func TestReadNumberBothBitsTreatedUnmated(t *testing.T) {
	require.Equal(t, 3, readNumberOf(sam.Read1|sam.Read2))
	rec := mateRecord("r3", "GATT", sam.Read1|sam.Read2)
	require.True(t, classify(rec).unmated)
}

func TestEnoughMatchesRejectsEmptySeq(t *testing.T) {
	rec := &sam.Record{Seq: sam.NewSeq(nil)}
	require.False(t, enoughMatches(rec))
}

func TestUnmatedUnalignedSpotAssignsID(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	l := newLoaderWithStores(t, dir)
	defer l.closeStores()

	rec := unmatedRecord("spotA", "GATTACA")
	cls := classify(rec)
	key, wasInserted, err := l.keys.Lookup(keyFor(rec))
	require.NoError(t, err)
	require.True(t, wasInserted)
	slot, err := l.table.GetSlot(key)
	require.NoError(t, err)

	perr := l.emitUnaligned(rec, cls, key, slot, defline.PlatformIllumina)
	require.Nil(t, perr)

	slot, err = l.table.GetSlot(key)
	require.NoError(t, err)
	require.NotZero(t, slot.SpotID)
	require.Len(t, l.written(), 1)
	require.Len(t, l.written()[0].Reads, 1)
}

func TestMatedPairResolvesThroughFragmentBank(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	l := newLoaderWithStores(t, dir)
	defer l.closeStores()

	r1 := mateRecord("pairA", "GATTACA", sam.Read1)
	r2 := mateRecord("pairA", "TTTTCCC", sam.Read2)

	for _, rec := range []*sam.Record{r1, r2} {
		cls := classify(rec)
		key, wasInserted, err := l.keys.Lookup(keyFor(rec))
		require.NoError(t, err)
		slot, err := l.table.GetSlot(key)
		require.NoError(t, err)
		if wasInserted && cls.unmated {
			slot.Flags |= arena.FlagUnmated
		}
		perr := l.emitUnaligned(rec, cls, key, slot, defline.PlatformIllumina)
		require.Nil(t, perr)
	}

	require.Len(t, l.written(), 1)
	require.Len(t, l.written()[0].Reads, 2)
	require.Equal(t, "1", l.written()[0].Reads[0].ReadNum)
	require.Equal(t, "2", l.written()[0].Reads[1].ReadNum)
}

func TestAlignedPrimaryEmitsImmediately(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	l := newLoaderWithStores(t, dir)
	defer l.closeStores()

	ref := new(sam.Reference)
	rec := alignedRecord("alignedA", "GATTACA", ref, 100, 60, 0)
	cls := classify(rec)
	require.True(t, cls.aligned)
	require.True(t, cls.primary)

	key, _, err := l.keys.Lookup(keyFor(rec))
	require.NoError(t, err)
	slot, err := l.table.GetSlot(key)
	require.NoError(t, err)

	align := l.Reference.Evaluate("chr1", rec.Pos, rec.Cigar, rec.Seq)
	perr := l.emitAligned(rec, cls, key, slot, align, "chr1", defline.PlatformIllumina)
	require.Nil(t, perr)

	slot, err = l.table.GetSlot(key)
	require.NoError(t, err)
	require.NotZero(t, slot.SpotID)
	require.EqualValues(t, 1, slot.AlignCount[0])
	require.Len(t, l.written(), 1)
}

func TestPrimaryDuplicateDemotesToSecondary(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	l := newLoaderWithStores(t, dir)
	defer l.closeStores()

	ref := new(sam.Reference)
	rec := alignedRecord("dupA", "GATTACA", ref, 5, 60, sam.Paired)
	key, _, err := l.keys.Lookup(keyFor(rec))
	require.NoError(t, err)
	slot, err := l.table.GetSlot(key)
	require.NoError(t, err)
	slot.PrimaryID[0] = 1
	require.NoError(t, l.putSlot(key, slot))

	perr := l.processRecord(rec, "test.bam", defline.PlatformIllumina)
	require.Nil(t, perr)

	slot, err = l.table.GetSlot(key)
	require.NoError(t, err)
	require.EqualValues(t, 1, slot.AlignCount[0])
	require.Len(t, l.written(), 0)
}

func TestFragmentInfoConflictDiscardsRecord(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	l := newLoaderWithStores(t, dir)
	defer l.closeStores()

	first := unmatedRecord("conflictA", "GATTACA")
	cls := classify(first)
	key, wasInserted, err := l.keys.Lookup(keyFor(first))
	require.NoError(t, err)
	require.True(t, wasInserted)
	slot, err := l.table.GetSlot(key)
	require.NoError(t, err)
	slot.Flags |= arena.FlagUnmated
	require.NoError(t, l.putSlot(key, slot))
	require.Nil(t, l.emitUnaligned(first, cls, key, slot, defline.PlatformIllumina))

	second := mateRecord("conflictA", "TTTTCCC", sam.Read1)
	perr := l.processRecord(second, "test.bam", defline.PlatformIllumina)
	require.Nil(t, perr)
	require.Len(t, l.written(), 1) // only the first record's spot, second discarded
}

func TestPCRDupConflictDiscardedUnlessAccepted(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	l := newLoaderWithStores(t, dir)
	defer l.closeStores()

	first := unmatedRecord("dupflagA", "GATTACA")
	cls := classify(first)
	key, _, err := l.keys.Lookup(keyFor(first))
	require.NoError(t, err)
	slot, err := l.table.GetSlot(key)
	require.NoError(t, err)
	slot.Flags |= arena.FlagUnmated
	require.NoError(t, l.putSlot(key, slot))
	require.Nil(t, l.emitUnaligned(first, cls, key, slot, defline.PlatformIllumina))

	second := unmatedRecord("dupflagA", "GATTACA")
	second.Flags |= sam.Duplicate
	perr := l.processRecord(second, "test.bam", defline.PlatformIllumina)
	require.Nil(t, perr)
	require.Len(t, l.written(), 1)
}

func TestSortOrderRegressionFatalWhenRequireSorted(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	l := newLoaderWithStores(t, dir)
	defer l.closeStores()
	l.Config.RequireSorted = true

	perr := l.checkSortOrder(biopb.Coord{RefId: 0, Pos: 100})
	require.Nil(t, perr)
	perr = l.checkSortOrder(biopb.Coord{RefId: 0, Pos: 50})
	require.NotNil(t, perr)
	require.Equal(t, errbudget.CodeUnsortedBAM, perr.Code)
}

func TestSortOrderRegressionSwitchesUnsortedModeByDefault(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	l := newLoaderWithStores(t, dir)
	defer l.closeStores()

	require.Nil(t, l.checkSortOrder(biopb.Coord{RefId: 0, Pos: 100}))
	require.Nil(t, l.checkSortOrder(biopb.Coord{RefId: 0, Pos: 50}))
	require.True(t, l.unsortedMode)
}

func TestParsePlatform(t *testing.T) {
	require.Equal(t, defline.PlatformIllumina, parsePlatform("ILLUMINA"))
	require.Equal(t, defline.PlatformNanopore, parsePlatform("OXFORD_NANOPORE"))
	require.Equal(t, defline.PlatformUndefined, parsePlatform("unknown-thing"))
}

func TestKeyForUsesReadGroupPrefix(t *testing.T) {
	rec := unmatedRecord("readA", "GATT")
	withoutRG := keyFor(rec)
	require.Equal(t, "readA", string(withoutRG))

	aux, err := sam.NewAux(sam.Tag{'R', 'G'}, "group1")
	require.NoError(t, err)
	rec.AuxFields = append(rec.AuxFields, aux)
	withRG := keyFor(rec)
	require.Equal(t, "group1\treadA", string(withRG))
}
