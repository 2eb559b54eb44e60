// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package fastqload

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/grailbio/seqspot/defline"
	"github.com/grailbio/seqspot/fastqio"
	"github.com/grailbio/seqspot/nameindex"
	"github.com/grailbio/seqspot/spotstore"
)

// FileReport is the per-input-file telemetry group (spec §6 "groups
// (per file batch)... per-file counts").
type FileReport struct {
	Path          string `json:"path"`
	DeflineBytes  int64  `json:"defline_bytes"`
	SequenceBytes int64  `json:"sequence_bytes"`
	QualityBytes  int64  `json:"quality_bytes"`
	RejectedReads int64  `json:"rejected_reads"`
	Duplicates    int64  `json:"duplicates"`
}

// Report is the telemetry JSON document emitted at end of run.
type Report struct {
	Groups                []FileReport     `json:"groups"`
	Platform              defline.Platform `json:"platform"`
	Quality               fastqio.Encoding `json:"quality"`
	AssembledSpots        int64            `json:"assembled_spots"`
	ReadsPerSpotHistogram map[int]int64    `json:"reads_per_spot_histogram"`
	FarReads              int64            `json:"far_reads"`
	ElapsedMsByStage      map[string]int64 `json:"elapsed_ms_by_stage"`

	groupIndex map[string]int
}

func newReport() *Report {
	return &Report{
		ReadsPerSpotHistogram: make(map[int]int64),
		ElapsedMsByStage:      make(map[string]int64),
		groupIndex:            make(map[string]int),
	}
}

// group returns (creating if needed) the FileReport for path.
func (r *Report) group(path string) *FileReport {
	if i, ok := r.groupIndex[path]; ok {
		return &r.Groups[i]
	}
	r.Groups = append(r.Groups, FileReport{Path: path})
	r.groupIndex[path] = len(r.Groups) - 1
	return &r.Groups[len(r.Groups)-1]
}

func (r *Report) stageElapsed(stage string, since time.Time) {
	r.ElapsedMsByStage[stage] = time.Since(since).Milliseconds()
}

// WriteFile marshals the report to path, the --telemetry destination.
func (r *Report) WriteFile(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// telemetryAccumulator satisfies pipeline.Telemetry. Per spec §5,
// telemetry counters are the one piece of pipeline state behind a
// single mutex, rather than per-reader-thread locals folded in later,
// since a FASTQ run's spot count is already bounded by one process.
type telemetryAccumulator struct {
	mu             sync.Mutex
	assembledSpots int64
	histogram      map[int]int64
}

func newTelemetryAccumulator() *telemetryAccumulator {
	return &telemetryAccumulator{histogram: make(map[int]int64)}
}

func (t *telemetryAccumulator) RecordSpot(s spotstore.Spot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.assembledSpots++
	t.histogram[len(s.Reads)]++
}

func (t *telemetryAccumulator) fillReport(r *Report) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r.AssembledSpots = t.assembledSpots
	for k, v := range t.histogram {
		r.ReadsPerSpotHistogram[k] = v
	}
}

// fillFarReads sums reads belonging to spots the name index marked
// cold, i.e. spots whose reads were too far apart in the stream to
// ever occupy the hot map (spec's "far_reads").
func fillFarReads(r *Report, idx *nameindex.Index) {
	var far int64
	for sid, n := range idx.ReadsPerSpot {
		if !idx.HotSpot[sid] {
			far += int64(n)
		}
	}
	r.FarReads = far
}
