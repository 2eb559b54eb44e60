// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package digest implements the Digest Sampler (C3): a bounded prefix
// scan over each input file that infers platform, quality encoding,
// reads-per-spot, and estimated total spot count ahead of the main
// pipeline pass.
package digest

import (
	"regexp"

	"github.com/grailbio/seqspot/defline"
	"github.com/grailbio/seqspot/errbudget"
	"github.com/grailbio/seqspot/fastqio"
	"github.com/minio/highwayhash"
)

// PerFile is the digest computed for one input file.
type PerFile struct {
	Path             string
	Platform         defline.Platform
	Encoding         fastqio.Encoding
	MinScore         int
	MaxScore         int
	MaxReadsPerSpot  int
	HasOrphans       bool
	Is10x            bool
	EstimatedSpots   int64
	BytesSampled     int64
	SpotsSampled     int64
	FileSizeBytes    int64
}

var tenXPattern = regexp.MustCompile(`(^|[_-])I\d+[._]`)
var tenXReadPattern = regexp.MustCompile(`R\d+`)

// hashKey is a fixed highwayhash key; the digest's orphan-dedup
// reservoir only needs a stable, fast, non-cryptographic hash, not a
// secret one.
var hashKey = make([]byte, 32)

// Sample reads up to maxSpots spots (default 250000, spec §4.3) from
// r, inferring per-file digest fields. fileSize is the on-disk size
// used to extrapolate EstimatedSpots from bytes-read/spots-seen.
func Sample(path string, r *fastqio.Reader, fileSize int64, maxSpots int) (PerFile, *errbudget.Error) {
	if maxSpots <= 0 {
		maxSpots = 250000
	}
	pf := PerFile{Path: path, FileSizeBytes: fileSize, MinScore: 1 << 30, MaxScore: -(1 << 30)}
	parser := defline.NewParser(path)
	seen := make(map[uint64]int)
	hasher, _ := highwayhash.New64(hashKey)

	platformSet := false
	for i := 0; i < maxSpots; i++ {
		rec, rerr, ok := r.Next()
		if !ok {
			if rerr != nil {
				return pf, rerr
			}
			break
		}
		pf.BytesSampled += int64(len(rec.Defline) + len(rec.Seq) + len(rec.Qual) + 3)
		pf.SpotsSampled++

		f, perr := parser.Parse(rec.Defline, rec.Line)
		if perr != nil {
			continue
		}
		if !platformSet {
			pf.Platform = f.Platform
			platformSet = true
		} else if f.Platform != pf.Platform {
			return pf, errbudget.New(errbudget.CodePlatformMismatch)
		}

		hasher.Reset()
		_, _ = hasher.Write([]byte(f.SpotName))
		key := hasher.Sum64()
		seen[key]++

		for _, c := range rec.Qual {
			v := int(c)
			if v < pf.MinScore {
				pf.MinScore = v
			}
			if v > pf.MaxScore {
				pf.MaxScore = v
			}
		}
		if n := seen[key]; n > pf.MaxReadsPerSpot {
			pf.MaxReadsPerSpot = n
		}
		if tenXPattern.MatchString(path) || tenXReadPattern.MatchString(path) {
			pf.Is10x = true
		}
	}
	for _, count := range seen {
		if count == 1 {
			pf.HasOrphans = true
			break
		}
	}
	pf.Encoding = inferEncoding(pf.MinScore, pf.MaxScore)
	if pf.BytesSampled > 0 && fileSize > 0 {
		pf.EstimatedSpots = int64(float64(pf.SpotsSampled) * float64(fileSize) / float64(pf.BytesSampled))
	}
	return pf, nil
}

// inferEncoding distinguishes numeric / Phred+33 / Phred+64 from the
// observed byte range, per §4.3(b).
func inferEncoding(min, max int) fastqio.Encoding {
	switch {
	case min >= 33 && max <= 75:
		return fastqio.EncodingPhred33
	case min >= 64 && max <= 126:
		return fastqio.EncodingPhred64
	case min >= -5 && max <= 40:
		return fastqio.EncodingNumeric
	default:
		return fastqio.EncodingPhred33
	}
}
