// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package fastqload orchestrates the FASTQ data flow of spec §2: a
// digest pass infers platform and quality encoding, pass 1 freezes
// the Name Index (C4) over every declared input file, and pass 2
// re-reads those files, submitting validated reads to the Pipeline
// (C6) while the Collation Checker (C10) consumes names alongside it.
package fastqload

import (
	"os"
	"sync"
	"time"

	"github.com/grailbio/seqspot/collate"
	"github.com/grailbio/seqspot/config"
	"github.com/grailbio/seqspot/defline"
	"github.com/grailbio/seqspot/digest"
	"github.com/grailbio/seqspot/errbudget"
	"github.com/grailbio/seqspot/fastqio"
	"github.com/grailbio/seqspot/nameindex"
	"github.com/grailbio/seqspot/pipeline"
	"github.com/grailbio/seqspot/spotstore"
	"github.com/grailbio/seqspot/writer"
)

// Loader runs the two-pass FASTQ ingestion described by spec §2's
// FASTQ data flow.
type Loader struct {
	Config config.Config
	Budget *errbudget.Budget
}

// New creates a Loader bound to cfg and the run's shared error budget.
func New(cfg config.Config, budget *errbudget.Budget) *Loader {
	return &Loader{Config: cfg, Budget: budget}
}

// Run loads every file named by l.Config into a fresh archive at
// outDir and returns the accumulated telemetry report.
func (l *Loader) Run(outDir string) (*Report, error) {
	files, ferr := buildFileList(l.Config)
	if ferr != nil {
		return nil, ferr
	}

	report := newReport()

	t0 := time.Now()
	platform, quality, derr := l.digestPass(files, report)
	if derr != nil {
		return nil, derr
	}
	report.Platform = platform
	report.Quality = quality
	report.stageElapsed("digest", t0)

	t1 := time.Now()
	names, rowCounts, nerr := l.namePass(files)
	if nerr != nil {
		return nil, nerr
	}
	idx := nameindex.Build(names, l.Config.EffectiveThreads(), l.Config.HotReadsThreshold)
	report.stageElapsed("name_index", t1)

	t2 := time.Now()
	store := spotstore.NewStore(4, l.Config.BatchSize)
	w := writer.NewWriter(outDir, writer.Opts{})
	wa := &writerAdapter{w: w, platform: platform}
	tel := newTelemetryAccumulator()
	pl := pipeline.New(idx, store, wa, tel, l.Config.BatchSize)
	checker := collate.NewChecker(int64(idx.NumSpots), idx, l.Budget)

	runDone := make(chan error, 1)
	go func() { runDone <- pl.Run() }()

	aerr := l.assemblePass(files, rowCounts, quality, pl, checker, report)
	pl.CloseInput()
	runErr := <-runDone
	if aerr != nil {
		return nil, aerr
	}
	if runErr != nil {
		return nil, runErr
	}
	if cerr := checker.Flush(); cerr != nil {
		return nil, cerr
	}
	report.stageElapsed("assemble", t2)

	if err := w.Close(); err != nil {
		return nil, err
	}
	now := time.Now()
	if err := writer.WriteCurrentFingerprint(outDir, w.OutputFingerprint(), "seqspot", now); err != nil {
		return nil, err
	}

	tel.fillReport(report)
	fillFarReads(report, idx)

	if l.Config.TelemetryPath != "" {
		if err := report.WriteFile(l.Config.TelemetryPath); err != nil {
			return nil, err
		}
	}
	return report, nil
}

// digestPass samples each distinct input file (C3) to infer the run's
// single declared platform and quality encoding ahead of pass 1.
func (l *Loader) digestPass(files []physicalFile, report *Report) (defline.Platform, fastqio.Encoding, error) {
	seen := make(map[string]bool)
	platform := defline.PlatformUndefined
	platformSet := false
	quality := fastqio.EncodingPhred33
	qualitySet := false

	for _, pf := range files {
		if seen[pf.Path] {
			continue
		}
		seen[pf.Path] = true
		report.group(pf.Path)

		f, err := os.Open(pf.Path)
		if err != nil {
			return 0, 0, errbudget.New(errbudget.CodeFileNotFound, pf.Path)
		}
		fi, statErr := f.Stat()
		var size int64
		if statErr == nil {
			size = fi.Size()
		}
		dr, oerr := fastqio.Open(f)
		if oerr != nil {
			f.Close()
			return 0, 0, errbudget.New(errbudget.CodeFileNotFound, pf.Path)
		}
		pfd, serr := digest.Sample(pf.Path, fastqio.NewReader(dr), size, l.Config.DigestSampleSize)
		f.Close()
		if serr != nil {
			return 0, 0, serr
		}
		if pfd.SpotsSampled == 0 {
			return 0, 0, errbudget.New(errbudget.CodeFileEmpty, pf.Path)
		}

		if !platformSet {
			platform = pfd.Platform
			platformSet = true
		} else if pfd.Platform != platform {
			return 0, 0, errbudget.New(errbudget.CodePlatformMismatch)
		}
		if l.Config.Quality != config.QualityAuto {
			quality = configQualityToEncoding(l.Config.Quality)
			qualitySet = true
		} else if !qualitySet {
			quality = pfd.Encoding
			qualitySet = true
		}
	}
	return platform, quality, nil
}

func configQualityToEncoding(q config.QualityEncoding) fastqio.Encoding {
	switch q {
	case config.QualityPhred64:
		return fastqio.EncodingPhred64
	default:
		return fastqio.EncodingPhred33
	}
}

// namePass freezes the full name vector pass 1 hands to
// nameindex.Build, skipping (and budgeting) any record whose defline
// fails to parse; pass 2 skips those same records for the same
// reason, so row numbering stays aligned between passes without
// threading state through the two scans.
// namePass also returns, per file, the count of records whose defline
// parsed: assemblePass needs each file's row offset into the frozen
// name vector so its reader goroutines can number rows independently.
func (l *Loader) namePass(files []physicalFile) ([]string, []int, *errbudget.Error) {
	var names []string
	counts := make([]int, len(files))
	for i, pf := range files {
		f, err := os.Open(pf.Path)
		if err != nil {
			return nil, nil, errbudget.New(errbudget.CodeFileNotFound, pf.Path)
		}
		dr, oerr := fastqio.Open(f)
		if oerr != nil {
			f.Close()
			return nil, nil, errbudget.New(errbudget.CodeFileNotFound, pf.Path)
		}
		r := fastqio.NewReader(dr)
		parser := defline.NewParser(pf.Path)
		for {
			rec, rerr, ok := r.Next()
			if !ok {
				if rerr != nil {
					f.Close()
					return nil, nil, rerr
				}
				break
			}
			fields, perr := parser.Parse(rec.Defline, rec.Line)
			if perr != nil {
				if l.Budget.Record(perr) {
					f.Close()
					return nil, nil, perr
				}
				continue
			}
			names = append(names, fields.SpotName)
			counts[i]++
		}
		f.Close()
	}
	return names, counts, nil
}

// assemblePass runs one reader goroutine per file (spec §5 "parallel
// OS threads, one per stage... Reader threads suspend on byte-source
// reads"), each submitting directly to pl and feeding checker
// concurrently. rowCounts (from namePass, in file order) gives each
// goroutine its row-number offset into the frozen name index, so rows
// can be assigned locally without a shared counter: row numbering only
// needs to match namePass's per-file skip rule, not interleave across
// files in real-time order.
func (l *Loader) assemblePass(files []physicalFile, rowCounts []int, quality fastqio.Encoding, pl *pipeline.Pipeline, checker *collate.Checker, report *Report) error {
	offsets := make([]int, len(files))
	row := 0
	for i, c := range rowCounts {
		offsets[i] = row
		row += c
	}

	stop := make(chan struct{})
	var errOnce sync.Once
	var firstErr error
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			close(stop)
		})
	}

	var wg sync.WaitGroup
	wg.Add(len(files))
	for i, pf := range files {
		go func(pf physicalFile, rowOffset int) {
			defer wg.Done()
			if err := l.assembleFile(pf, rowOffset, quality, pl, checker, report, stop); err != nil {
				fail(err)
			}
		}(pf, offsets[i])
	}
	wg.Wait()
	return firstErr
}

// assembleFile is one reader thread's body: it owns pf exclusively,
// re-validating and re-decoding each surviving record exactly as
// namePass did, and submits the resulting reads to pl in file order,
// numbered starting at rowOffset.
func (l *Loader) assembleFile(pf physicalFile, rowOffset int, quality fastqio.Encoding, pl *pipeline.Pipeline, checker *collate.Checker, report *Report, stop <-chan struct{}) error {
	fr := report.group(pf.Path)

	f, err := os.Open(pf.Path)
	if err != nil {
		return errbudget.New(errbudget.CodeFileNotFound, pf.Path)
	}
	defer f.Close()
	dr, oerr := fastqio.Open(f)
	if oerr != nil {
		return errbudget.New(errbudget.CodeFileNotFound, pf.Path)
	}
	r := fastqio.NewReader(dr)
	parser := defline.NewParser(pf.Path)

	row := rowOffset
	for {
		select {
		case <-stop:
			return nil
		default:
		}
		if pl.Cancelled() {
			return nil
		}
		rec, rerr, ok := r.Next()
		if !ok {
			if rerr != nil {
				return rerr
			}
			return nil
		}
		fr.DeflineBytes += int64(len(rec.Defline))
		fr.SequenceBytes += int64(len(rec.Seq))
		fr.QualityBytes += int64(len(rec.Qual))

		fields, perr := parser.Parse(rec.Defline, rec.Line)
		if perr != nil {
			if l.Budget.Record(perr) {
				return perr
			}
			fr.RejectedReads++
			continue
		}

		myRow := row
		row++

		read, rderr := l.buildRead(fields, rec, quality, pf)
		if rderr != nil {
			if l.Budget.Record(rderr) {
				return rderr
			}
			fr.RejectedReads++
			continue
		}

		if cerr := checker.Observe(fields.SpotName, pf.Path, rec.Line); cerr != nil {
			return cerr
		}

		pl.Submit(pipeline.ReadItem{
			Row:        myRow,
			ReaderID:   pf.ReaderID,
			LineNumber: rec.Line,
			Read:       read,
		})
	}
}

// buildRead validates and decodes one record's sequence and quality
// and assembles the spotstore.Read the pipeline will buffer or emit.
func (l *Loader) buildRead(fields defline.Fields, rec fastqio.Record, quality fastqio.Encoding, pf physicalFile) (spotstore.Read, *errbudget.Error) {
	seq := append([]byte(nil), rec.Seq...)
	if bad := fastqio.TranslateSequence(seq); bad >= 0 {
		return spotstore.Read{}, errbudget.New(errbudget.CodeInvalidSequence, fields.SpotName).WithLocation(pf.Path, rec.Line)
	}

	qual, qerr := decodeQuality(rec.Qual, len(seq), quality, fields.SpotName)
	if qerr != nil {
		return spotstore.Read{}, qerr.WithLocation(pf.Path, rec.Line)
	}

	readNum := fields.ReadNum
	if readNum == "" {
		readNum = pf.DeclaredNum
	}

	return spotstore.Read{
		SpotName:       fields.SpotName,
		ReadNum:        readNum,
		SpotGroup:      fields.SpotGroup,
		Suffix:         fields.Suffix,
		Sequence:       seq,
		Quality:        qual,
		ReadFilter:     fields.ReadFilter,
		Channel:        fields.Channel,
		NanoporeReadNo: fields.NanoporeReadNo,
		ReaderID:       pf.ReaderID,
		LineNumber:     rec.Line,
	}, nil
}

// decodeQuality normalizes the numeric, Phred+33 and Phred+64 quality
// encodings to one Phred+33 byte per base, matching
// spotstore.Read.Quality's documented shape.
func decodeQuality(qual []byte, seqLen int, enc fastqio.Encoding, name string) ([]byte, *errbudget.Error) {
	if enc == fastqio.EncodingNumeric {
		scores, _, _, err := fastqio.ParseNumericQuality(string(qual), seqLen, enc)
		if err != nil {
			return nil, err
		}
		out := make([]byte, len(scores))
		for i, s := range scores {
			out[i] = byte(int(s) + 33)
		}
		return out, nil
	}
	out, _, _, err := fastqio.ValidateQualityPhred(qual, seqLen, enc)
	if err != nil {
		return nil, err
	}
	if enc == fastqio.EncodingPhred64 {
		for i := range out {
			out[i] -= 64 - 33
		}
	}
	return out, nil
}
