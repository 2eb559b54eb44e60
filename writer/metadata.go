// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package writer

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"blainsmith.com/go/seahash"
)

// FileFingerprint is the JSON payload written to LOAD/QC/file_<k> for
// each input file (spec §6).
type FileFingerprint struct {
	Name      string `json:"name"`
	Digest    string `json:"digest"`
	Algorithm string `json:"algorithm"`
	Version   string `json:"version"`
	Format    string `json:"format"`
}

// CurrentFingerprint is the JSON payload written to QC/current on the
// SEQUENCE table, describing the archive's own content digest.
type CurrentFingerprint struct {
	Fingerprint string    `json:"fingerprint"`
	Digest      string    `json:"digest"`
	Algorithm   string    `json:"algorithm"`
	Version     string    `json:"version"`
	Format      string    `json:"format"`
	Timestamp   time.Time `json:"timestamp"`
}

// ChangeRecord is the JSON payload written to CHANGES/<kind>_<n>.
type ChangeRecord struct {
	Change string `json:"change"`
	Reason string `json:"reason"`
	Count  uint32 `json:"-"`
}

const fingerprintAlgorithm = "seahash"
const fingerprintVersion = "1"

// HashFile computes an input file's content fingerprint the same way
// Writer.OutputFingerprint computes the output's: a running seahash
// over the file's raw bytes.
func HashFile(r io.Reader) (uint64, error) {
	h := seahash.New()
	if _, err := io.Copy(h, r); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}

// WriteFileFingerprint writes dir/LOAD/QC/file_<k>.
func WriteFileFingerprint(dir string, k int, name string, digest uint64, format string) error {
	fp := FileFingerprint{
		Name:      name,
		Digest:    fmt.Sprintf("%016x", digest),
		Algorithm: fingerprintAlgorithm,
		Version:   fingerprintVersion,
		Format:    format,
	}
	return writeJSON(dir, fmt.Sprintf("LOAD/QC/file_%d", k), fp)
}

// WriteCurrentFingerprint writes dir/QC/current for the output table.
func WriteCurrentFingerprint(dir string, digest uint64, format string, now time.Time) error {
	fp := CurrentFingerprint{
		Fingerprint: fmt.Sprintf("%016x", digest),
		Digest:      fmt.Sprintf("%016x", digest),
		Algorithm:   fingerprintAlgorithm,
		Version:     fingerprintVersion,
		Format:      format,
		Timestamp:   now,
	}
	return writeJSON(dir, "QC/current", fp)
}

// WriteBAMHeader writes the raw BAM header bytes to dir/BAM_HEADER,
// for BAM runs only.
func WriteBAMHeader(dir string, header []byte) error {
	path := dir + "/BAM_HEADER"
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, header, 0o644)
}

// WriteChange writes dir/CHANGES/<kind>_<n>: the JSON attributes plus
// a trailing 32-bit big-endian count, per spec §6.
func WriteChange(dir, kind string, n int, rec ChangeRecord) error {
	path := fmt.Sprintf("%s/CHANGES/%s_%d", dir, kind, n)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(ChangeRecord{Change: rec.Change, Reason: rec.Reason})
	if err != nil {
		return err
	}
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], rec.Count)
	data = append(data, countBuf[:]...)
	return os.WriteFile(path, data, 0o644)
}

func writeJSON(dir, rel string, v interface{}) error {
	path := dir + "/" + rel
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
