// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package config defines the loader's run configuration. A Config is
// built once from flags and then passed by value into every
// constructor, replacing the mutable global "G" of the original
// loader: the only mutable, process-wide state left after this
// replacement is errbudget.Budget's counters.
package config

import "time"

// NameColumn selects how the NAME column of the archive is populated.
type NameColumn int

const (
	NameColumnNone NameColumn = iota
	NameColumnName
	NameColumnRawName
)

func (c NameColumn) String() string {
	switch c {
	case NameColumnName:
		return "NAME"
	case NameColumnRawName:
		return "RAW_NAME"
	default:
		return "NONE"
	}
}

// ParseNameColumn parses the --name-column flag value.
func ParseNameColumn(s string) NameColumn {
	switch s {
	case "NAME":
		return NameColumnName
	case "RAW_NAME":
		return NameColumnRawName
	default:
		return NameColumnNone
	}
}

// QualityEncoding selects a fixed quality encoding, bypassing digest
// autodetection, per --quality.
type QualityEncoding int

const (
	QualityAuto    QualityEncoding = 0
	QualityPhred33 QualityEncoding = 33
	QualityPhred64 QualityEncoding = 64
)

// Config is the immutable, explicit replacement for the original
// loader's global state struct.
type Config struct {
	// Inputs.
	Read1PairFiles [][]string // --read1PairFiles..--read4PairFiles, split on comma
	Read2PairFiles [][]string
	Read3PairFiles [][]string
	Read4PairFiles [][]string
	BAMPaths       []string

	// Behavior.
	ReadTypes          string // alphabet {T,B,A}, one char per declared read
	Platform           string
	SpotAssembly       bool
	AllowEarlyFileEnd  bool
	UseAndDiscardNames bool
	NameColumn         NameColumn
	Quality            QualityEncoding
	RequireSorted      bool
	AcceptBadDups      bool

	// Limits.
	MaxErrCount int

	// Ops.
	Threads           int
	CacheSizeMiB      int
	BatchSize         int
	HotReadsThreshold int // H in spec §3/§4.5, default 1e7
	TmpfsDir          string

	// Diagnostics.
	DigestSampleSize int // 0 disables digest sampling override (default 250000)
	TelemetryPath    string
	PrintDeflines    bool

	// DequeuePollInterval governs how long a pipeline consumer
	// timed-blocks before re-checking the cancellation flag (spec §5).
	DequeuePollInterval time.Duration
}

// Default returns a Config with every spec-mandated default applied.
func Default() Config {
	return Config{
		MaxErrCount:         100,
		Threads:             8,
		CacheSizeMiB:        4096,
		BatchSize:           10000,
		HotReadsThreshold:   10000000,
		DigestSampleSize:    250000,
		DequeuePollInterval: 100 * time.Millisecond,
	}
}

// EffectiveThreads applies the spec §6 rule: 0 means 8, values below
// 3 are rejected by the caller before reaching here.
func (c Config) EffectiveThreads() int {
	if c.Threads == 0 {
		return 8
	}
	return c.Threads
}
