// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package errbudget implements the loader's fixed error taxonomy: a
// closed registry of integer codes and message templates, per-class
// throttling, and the mutable per-run counters that decide whether a
// recoverable error is tolerated or escalates to fatal.
package errbudget

// Code identifies one entry in the fixed error registry.
type Code int

// The full registry. Values and message templates are a stable
// external contract: telemetry consumers match on Code, and
// --help-errors prints Description verbatim.
const (
	CodeRuntime             Code = 0
	CodeMismatchedPairLists Code = 10
	CodeInconsistentGroups  Code = 11
	CodeNoReadTypes         Code = 20
	CodeReadTypesMismatch   Code = 30
	CodeFileNotFound        Code = 40
	CodeFileEmpty           Code = 50
	CodePlatformMismatch    Code = 70
	CodeTenXMixed           Code = 80
	CodeDeflineUnrecognized Code = 100
	CodeIlluminaUnrecognized Code = 101
	CodeNoSequence          Code = 110
	CodeNoQuality           Code = 111
	CodeQualityOutOfRange   Code = 120
	CodeQualityTooLong      Code = 130
	CodeQualityBadChar      Code = 140
	CodeInvalidReadType     Code = 150
	CodeInvalidSequence     Code = 160
	CodeDuplicateSpot       Code = 170
	CodeEarlyFileEnd        Code = 180
	CodeInterleavedOrphans  Code = 190
	CodeInvalidEncoding     Code = 200
	CodeTooManyReads        Code = 210
	CodeInvalidExperiment   Code = 220
	CodeInternalQC          Code = 230
	CodeInvalidPlatform     Code = 240
	CodeSpotAssemblyRequired Code = 250
	CodeMixedColorSpace     Code = 260
	CodeUnsortedBAM         Code = 270
)

type entry struct {
	message     string
	description string
}

// registry mirrors the original SHARQ_ERR_CODES table verbatim,
// including its typos ("excceds", "platfrom").
var registry = map[Code]entry{
	CodeRuntime:              {"Runtime error.", "Runtime error."},
	CodeMismatchedPairLists:  {"Invalid command line parameters, inconsistent number of read pairs", "Number of comma-separated files in all readNPairFiles parameters is expected to be the same."},
	CodeInconsistentGroups:   {"Inconsistent file sets: first group (%s), second group (%s)", "Input files are clustered into groups. Number of files in each groups is expected to be the same."},
	CodeNoReadTypes:          {"No readTypes provided", "'--readTypes' parameter is expected if readNPairFiles parameters are present."},
	CodeReadTypesMismatch:    {"readTypes number should match the number of reads", "'--readTypes' number should match the number the number of reads."},
	CodeFileNotFound:         {"File '%s' does not exists", "Failure to find input file passed in the parameters."},
	CodeFileEmpty:            {"File '%s' has no reads", "No reads found in the file."},
	CodePlatformMismatch:     {"Input files have deflines from different platforms", "Input files have deflines from different platforms."},
	CodeTenXMixed:            {"10x input files are mixed with different types.", "10x input files are mixed with different types (check file names)."},
	CodeDeflineUnrecognized:  {"Defline '%s' not recognized", "SharQ failed to parse defline."},
	CodeIlluminaUnrecognized: {"Illumina defline '%s' is not recognized", "SharQ failed to parse defline."},
	CodeNoSequence:           {"Read %s: no sequence data", "FastQ read has no sequence data."},
	CodeNoQuality:            {"Read %s: no quality scores", "FastQ read has no quality scores."},
	CodeQualityOutOfRange:    {"Read %s: unexpected quality score value '%s'", "Quality score is out of expected range."},
	CodeQualityTooLong:       {"Read %s: quality score length exceeds sequence length", "Quality score length exceeds sequence length."},
	CodeQualityBadChar:       {"Read %s: quality score contains unexpected character '%s'", "Quality score contains unexpected characters."},
	CodeInvalidReadType:      {"Read %s: invalid readtType '%s'", "Unexpected '--readTypes' parameter values."},
	CodeInvalidSequence:      {"Read %s: invalid sequence characters", "Sequence contains non-alphabetical character."},
	CodeDuplicateSpot:        {"Collation check. Duplicate spot '%s'", "Collation check found duplicated spot name."},
	CodeEarlyFileEnd:         {"%s ended early at line %d. Use '--allowEarlyFileEnd' to allow load to finish.", "One of the files is shorter than the other. Use '--allowEarlyFileEnd' to allow load to finish."},
	CodeInterleavedOrphans:   {"Unsupported interleaved file with orphans", "Unsupported interleaved file with orphans."},
	CodeInvalidEncoding:      {"Invalid quality encoding", "Failure to calculate quality score encoding."},
	CodeTooManyReads:         {"Spot %s has more than 4 reads", "Assembled spot has more than 4 reads."},
	CodeInvalidExperiment:    {"Invalid experiment file", "Invalid experiment file."},
	CodeInternalQC:           {"Internal QC failure", "Internal QC failure."},
	CodeInvalidPlatform:      {"Invalid platfrom code", "Invalid platfrom code."},
	CodeSpotAssemblyRequired: {"Estimated number of spots excceds the limit for this mode. Re-run with --spot-assembly parameter", "Estimated number of spots excceds the limit for this mode. Re-run with --spot-assembly parameter."},
	CodeMixedColorSpace:      {"File '%s' contains base space and color space", "A single BAM file mixed reads with and without a CS tag."},
	CodeUnsortedBAM:          {"BAM input is not coordinate-sorted; rerun without --requireSorted or with a sorted input", "A later alignment's reference position regressed below an earlier one while --requireSorted was set."},
}

// Description returns the human-facing description for --help-errors.
func (c Code) Description() string {
	return registry[c].description
}

// Class partitions codes into the taxonomy of spec §7.
type Class int

const (
	ClassParse Class = iota
	ClassStructural
	ClassResource
	ClassAssembly
	ClassInternal
)

// throttled is the set of codes that are warn-and-continue up to
// --max-err-count, rather than immediately fatal.
var throttled = map[Code]bool{
	CodeDeflineUnrecognized: true,
	CodeIlluminaUnrecognized: true,
	CodeNoSequence:          true,
	CodeNoQuality:           true,
	CodeQualityOutOfRange:   true,
	CodeQualityTooLong:      true,
	CodeQualityBadChar:      true,
	CodeInvalidReadType:     true,
	CodeInvalidSequence:     true,
	CodeInterleavedOrphans:  true,
}

// Throttled reports whether c belongs to the throttled class
// {100,101,110,111,120,130,140,150,160,190}.
func Throttled(c Code) bool { return throttled[c] }

// ClassOf classifies a code per spec §7.
func ClassOf(c Code) Class {
	switch c {
	case CodeDuplicateSpot:
		return ClassAssembly
	case CodeInternalQC:
		return ClassInternal
	case CodeFileNotFound, CodeFileEmpty, CodeEarlyFileEnd, CodeTooManyReads, CodeSpotAssemblyRequired:
		return ClassResource
	case CodeMismatchedPairLists, CodeInconsistentGroups, CodeNoReadTypes, CodeReadTypesMismatch,
		CodePlatformMismatch, CodeTenXMixed, CodeInvalidEncoding, CodeInvalidExperiment, CodeInvalidPlatform,
		CodeMixedColorSpace, CodeUnsortedBAM:
		return ClassStructural
	default:
		return ClassParse
	}
}
