// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

/*
seqload ingests FASTQ or BAM input into the columnar spot archive.
Given one run's worth of input files, it assembles spots, validates
reads against the error registry, and writes the archive plus a
telemetry report to the output directory.
*/
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/seqspot/bamload"
	"github.com/grailbio/seqspot/config"
	"github.com/grailbio/seqspot/errbudget"
	"github.com/grailbio/seqspot/fastqload"
)

// pairFilesFlag implements flag.Value for --readNPairFiles: each flag
// occurrence is one comma-separated group of files, and the flag may
// be repeated to declare multiple groups (spec §6's "comma lists
// establishing explicit cross-file read pairing").
type pairFilesFlag struct{ groups *[][]string }

func (f pairFilesFlag) String() string {
	if f.groups == nil {
		return ""
	}
	var parts []string
	for _, g := range *f.groups {
		parts = append(parts, strings.Join(g, ","))
	}
	return strings.Join(parts, ";")
}

func (f pairFilesFlag) Set(v string) error {
	*f.groups = append(*f.groups, strings.Split(v, ","))
	return nil
}

var (
	read1PairFiles [][]string
	read2PairFiles [][]string
	read3PairFiles [][]string
	read4PairFiles [][]string

	readTypes          = flag.String("readTypes", "", "Alphabet over {T,B,A}, one character per declared read, technical/biological/ambiguous; recorded in the run configuration, not read by either loader")
	platform           = flag.String("platform", "", "Instrument platform name; mismatches across input files are fatal")
	spotAssembly       = flag.Bool("spot-assembly", false, "Spot-assembly mode switch; recorded in the run configuration, not read by either loader")
	allowEarlyFileEnd  = flag.Bool("allowEarlyFileEnd", false, "Early-file-end tolerance switch; recorded in the run configuration, not read by either loader")
	useAndDiscardNames = flag.Bool("useAndDiscardNames", false, "Name-discarding switch; recorded in the run configuration, not read by either loader")
	nameColumn         = flag.String("name-column", "NONE", "NAME column policy: NONE, NAME, or RAW_NAME; recorded in the run configuration, not read by either loader")
	quality            = flag.Int("quality", 0, "Fixed quality encoding (0 = autodetect via digest, 33 = Phred+33, 64 = Phred+64)")
	requireSorted      = flag.Bool("requireSorted", false, "Fail (rather than switch to unsorted mode) on a BAM coordinate-sort regression")
	acceptBadDups      = flag.Bool("acceptBadDups", false, "Retain a second alignment record that conflicts with an already-resolved fragment, instead of discarding it")

	maxErrCount = flag.Int("max-err-count", 100, "Throttled parse errors tolerated before the run is aborted")

	threads           = flag.Int("threads", 8, "Worker threads; 0 means 8, values below 3 are rejected")
	cacheSize         = flag.Int("cache-size", 4096, "Key index cache size, in MiB")
	batchSize         = flag.Int("batch-size", 10000, "Spot store batch size")
	hotReadsThreshold = flag.Int("hot-reads-threshold", 10000000, "Row-span above which a spot is treated as cold")
	tmpfsDir          = flag.String("tmpfs", "", "Directory for spill files; recorded in the run configuration, not read by either loader (spill files go under the output directory)")

	digest        = flag.Int("digest", 250000, "Digest sample size in records per file; 0 uses the default of 250000")
	telemetryPath = flag.String("telemetry", "", "Path to write the run's JSON telemetry report")
	printDeflines = flag.Bool("print-deflines", false, "Defline echo switch; recorded in the run configuration, not read by either loader")
	helpErrors    = flag.Bool("help-errors", false, "Print the error code registry and exit")

	out = flag.String("out", "", "Output directory for the archive; created if it does not exist")
)

func init() {
	flag.Var(pairFilesFlag{&read1PairFiles}, "read1PairFiles", "Comma-separated group of read-1 files; repeat the flag for additional groups")
	flag.Var(pairFilesFlag{&read2PairFiles}, "read2PairFiles", "Comma-separated group of read-2 files")
	flag.Var(pairFilesFlag{&read3PairFiles}, "read3PairFiles", "Comma-separated group of read-3 files")
	flag.Var(pairFilesFlag{&read4PairFiles}, "read4PairFiles", "Comma-separated group of read-4 files")
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS] [path.bam ...]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  FASTQ input is named via --read1PairFiles..--read4PairFiles; BAM input is named positionally.\n")
	flag.PrintDefaults()
}

// printErrorRegistry implements --help-errors: the code list from
// spec §6 plus the BAM-only codes 260 and 270, each printed with its
// human-facing description.
func printErrorRegistry() {
	codes := []errbudget.Code{
		10, 11, 20, 30, 40, 50, 70, 80, 100, 101, 110, 111, 120, 130, 140, 150,
		160, 170, 180, 190, 200, 210, 220, 230, 240, 250, 260, 270,
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	for _, c := range codes {
		fmt.Printf("%d\t%s\n", int(c), c.Description())
	}
}

// failureReport is the JSON document spec §7 requires on a failed
// run: the error message stripped of non-printable characters, and
// how long the run had been going when it failed.
type failureReport struct {
	Error     string `json:"error"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}

func writeFailureReport(path string, err error, elapsed time.Duration) {
	if path == "" {
		return
	}
	rep := failureReport{Error: sanitize(err.Error()), ElapsedMs: elapsed.Milliseconds()}
	data, merr := json.MarshalIndent(rep, "", "  ")
	if merr != nil {
		log.Error.Printf("seqload: marshaling failure report: %v", merr)
		return
	}
	if werr := os.WriteFile(path, data, 0o644); werr != nil {
		log.Error.Printf("seqload: writing failure report to %s: %v", path, werr)
	}
}

func parseQuality(v int) config.QualityEncoding {
	switch v {
	case 33:
		return config.QualityPhred33
	case 64:
		return config.QualityPhred64
	default:
		return config.QualityAuto
	}
}

func buildConfig(bamPaths []string) config.Config {
	cfg := config.Default()
	cfg.Read1PairFiles = read1PairFiles
	cfg.Read2PairFiles = read2PairFiles
	cfg.Read3PairFiles = read3PairFiles
	cfg.Read4PairFiles = read4PairFiles
	cfg.BAMPaths = bamPaths

	cfg.ReadTypes = *readTypes
	cfg.Platform = *platform
	cfg.SpotAssembly = *spotAssembly
	cfg.AllowEarlyFileEnd = *allowEarlyFileEnd
	cfg.UseAndDiscardNames = *useAndDiscardNames
	cfg.NameColumn = config.ParseNameColumn(*nameColumn)
	cfg.Quality = parseQuality(*quality)
	cfg.RequireSorted = *requireSorted
	cfg.AcceptBadDups = *acceptBadDups

	cfg.MaxErrCount = *maxErrCount

	cfg.Threads = *threads
	cfg.CacheSizeMiB = *cacheSize
	cfg.BatchSize = *batchSize
	cfg.HotReadsThreshold = *hotReadsThreshold
	cfg.TmpfsDir = *tmpfsDir

	cfg.DigestSampleSize = *digest
	cfg.TelemetryPath = *telemetryPath
	cfg.PrintDeflines = *printDeflines
	return cfg
}

// isBAM reports whether path looks like BAM input, distinguishing the
// positional-argument dispatch between the two loaders.
func isBAM(path string) bool {
	return strings.HasSuffix(path, ".bam")
}

func main() {
	flag.Usage = usage
	flag.Parse()
	shutdown := grail.Init()
	defer shutdown()

	if *helpErrors {
		printErrorRegistry()
		return
	}

	if *threads != 0 && *threads < 3 {
		log.Error.Printf("seqload: --threads must be 0 or >= 3, got %d", *threads)
		os.Exit(1)
	}

	var bamPaths []string
	for _, a := range flag.Args() {
		if !isBAM(a) {
			log.Error.Printf("seqload: positional argument %q is not a .bam file; FASTQ input is named via --read1PairFiles..--read4PairFiles", a)
			os.Exit(1)
		}
		bamPaths = append(bamPaths, a)
	}

	if *out == "" {
		log.Error.Printf("seqload: --out is required")
		os.Exit(1)
	}
	if err := os.MkdirAll(*out, 0o755); err != nil {
		log.Error.Printf("seqload: creating output directory %s: %v", *out, err)
		os.Exit(1)
	}

	cfg := buildConfig(bamPaths)
	budget := errbudget.NewBudget(cfg.MaxErrCount)

	start := time.Now()
	var runErr error
	if len(bamPaths) > 0 {
		runErr = bamload.New(cfg, budget).Run(*out)
	} else {
		var report *fastqload.Report
		report, runErr = fastqload.New(cfg, budget).Run(*out)
		if runErr == nil && cfg.TelemetryPath != "" {
			if werr := report.WriteFile(cfg.TelemetryPath); werr != nil {
				log.Error.Printf("seqload: writing telemetry to %s: %v", cfg.TelemetryPath, werr)
			}
		}
	}
	elapsed := time.Since(start)

	if runErr != nil {
		writeFailureReport(cfg.TelemetryPath, runErr, elapsed)
		log.Error.Printf("seqload: %v", runErr)
		log.Error.Printf("severity=total,status=failure")
		os.Exit(1)
	}
	log.Info.Printf("severity=total,status=success")
}
