// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package defline classifies FASTQ header lines (C1). A chain of
// platform-specific regex matchers extracts spot name, read number,
// barcode, suffix, platform, and platform-specific fields (channel,
// nanopore read number) from the defline.
package defline

// Platform identifies the instrument family that produced a defline.
type Platform int

const (
	PlatformUndefined Platform = iota
	PlatformIllumina
	PlatformBGI
	PlatformPacBio
	PlatformLS454
	PlatformIonTorrent
	PlatformNanopore
)

func (p Platform) String() string {
	switch p {
	case PlatformIllumina:
		return "ILLUMINA"
	case PlatformBGI:
		return "BGI"
	case PlatformPacBio:
		return "PACBIO"
	case PlatformLS454:
		return "LS454"
	case PlatformIonTorrent:
		return "ION_TORRENT"
	case PlatformNanopore:
		return "OXFORD_NANOPORE"
	default:
		return "UNDEFINED"
	}
}

// ReadFilter is the pass/reject flag carried on each Read.
type ReadFilter int

const (
	ReadFilterPass ReadFilter = iota
	ReadFilterReject
)

// Fields is the structured result of parsing one defline.
type Fields struct {
	SpotName       string
	ReadNum        string // small integer encoded as text; may be empty
	SpotGroup      string // barcode; may be empty
	Suffix         string // platform-specific trailing fragment
	Platform       Platform
	ReadFilter     ReadFilter
	Channel        string // nanopore only
	NanoporeReadNo string // nanopore only

	// MatcherName records which matcher in the priority list succeeded.
	MatcherName string
}
