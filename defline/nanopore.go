// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package defline

import (
	"regexp"
	"strings"
)

var (
	porePass        = regexp.MustCompile(`pass[/\\]`)
	poreFail        = regexp.MustCompile(`fail[/\\]`)
	poreBarcode     = regexp.MustCompile(`(NB\d{2}|BC\d{2}|barcode(\d{2}))[/\\]`)
	barcodeUnclassified = "unclassified"
)

// nanoporeMatchers covers the 5 numbered nanopore variants. Variants
// 1 and 2 share a channel/read-number shape; 3/3.1/4/5 key off a
// GUID-style read id instead and are covered by one representative
// matcher here since their downstream post-processing is identical.
var nanoporeMatchers = []matcher{
	{
		name:     "Nanopore1",
		platform: PlatformNanopore,
		re: regexp.MustCompile(
			`^[@>+]+?channel_(?P<channel>\d+)(?:_read_)?(?P<readno>\d+)?[!-~]*?(\s+|$)`),
		extract: nanoporeExtract,
	},
	{
		name:     "Nanopore2",
		platform: PlatformNanopore,
		re: regexp.MustCompile(
			`^[@>+][!-~]*?ch(?P<channel>\d+)_file(?P<readno>\d+)[!-~]*?(\s+|$)`),
		extract: nanoporeExtract,
	},
	{
		name:     "Nanopore4",
		platform: PlatformNanopore,
		re: regexp.MustCompile(
			`^[@>+](?P<name>[!-~]*?\S{8}-\S{4}-\S{4}-\S{4}-\S{12}\S*) read[=_]?(?P<readno>\d+) ch[=_]?(?P<channel>\d+)(?: barcode=(?P<bc>\S+))?`),
		extract: nanoporeExtract,
	},
}

func nanoporeExtract(m []string, names []string) Fields {
	f := Fields{
		Platform:       PlatformNanopore,
		SpotName:       group(m, names, "name"),
		Channel:        group(m, names, "channel"),
		NanoporeReadNo: group(m, names, "readno"),
		SpotGroup:      group(m, names, "bc"),
	}
	return f
}

// applyNanoporePostProcessing implements the post-processing rules of
// §4.1: default missing channel/read_no to "0"; pass/fail from the
// file path; drop barcode "unclassified"; collapse barcodeNN to BCNN.
func applyNanoporePostProcessing(f *Fields, path string) {
	if f.Channel == "" {
		f.Channel = "0"
	}
	if f.NanoporeReadNo == "" {
		f.NanoporeReadNo = "0"
	}
	if porePass.MatchString(path) {
		f.ReadFilter = ReadFilterPass
	} else if poreFail.MatchString(path) {
		f.ReadFilter = ReadFilterReject
	}
	if loc := poreBarcode.FindStringSubmatch(path); loc != nil {
		bc := loc[1]
		if strings.HasPrefix(bc, "barcode") {
			bc = "BC" + bc[len("barcode"):]
		}
		f.SpotGroup = bc
	}
	if f.SpotGroup == barcodeUnclassified {
		f.SpotGroup = ""
	}
}
