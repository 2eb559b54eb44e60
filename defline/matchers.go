// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package defline

import "regexp"

// matcher is one entry in the priority list of C1. Each matcher is
// named after the platform/variant family it recognizes, mirroring
// the family names of the original defline matcher table (Illumina
// new/old, BGI, PacBio, LS454, IonTorrent, Oxford Nanopore, and one
// catch-all that extracts only the spot name).
type matcher struct {
	name     string
	platform Platform
	re       *regexp.Regexp
	extract  func(m []string, names []string) Fields
}

func group(m []string, names []string, name string) string {
	for i, n := range names {
		if n == name && i < len(m) {
			return m[i]
		}
	}
	return ""
}

func illuminaExtract(m []string, names []string) Fields {
	f := Fields{
		Platform:  PlatformIllumina,
		SpotName:  group(m, names, "name"),
		ReadNum:   group(m, names, "read"),
		SpotGroup: group(m, names, "bc"),
		Suffix:    group(m, names, "suffix"),
	}
	if group(m, names, "filter") == "Y" {
		f.ReadFilter = ReadFilterReject
	}
	return f
}

func bgiExtract(m []string, names []string) Fields {
	name := group(m, names, "flowcell") + group(m, names, "lane") +
		group(m, names, "col") + group(m, names, "row") + group(m, names, "tile")
	f := Fields{
		Platform: PlatformBGI,
		SpotName: name,
		ReadNum:  group(m, names, "read"),
		Suffix:   group(m, names, "suffix"),
	}
	if group(m, names, "filter") == "Y" {
		f.ReadFilter = ReadFilterReject
	}
	return f
}

func ls454Extract(m []string, names []string) Fields {
	return Fields{
		Platform: PlatformLS454,
		SpotName: group(m, names, "prefix") + group(m, names, "region") +
			group(m, names, "xy") + group(m, names, "tile"),
		ReadNum: readNumFromSuffix(group(m, names, "suffix")),
	}
}

func ionTorrentExtract(m []string, names []string) Fields {
	return Fields{
		Platform: PlatformIonTorrent,
		SpotName: group(m, names, "flowcell") + ":" + group(m, names, "x") + ":" + group(m, names, "y"),
		Suffix:   group(m, names, "suffix"),
	}
}

func pacbioExtract(m []string, names []string) Fields {
	return Fields{
		Platform: PlatformPacBio,
		SpotName: group(m, names, "name"),
		Suffix:   group(m, names, "suffix"),
	}
}

func readNumFromSuffix(suffix string) string {
	if len(suffix) == 2 && suffix[0] == '/' {
		return string(suffix[1])
	}
	return ""
}

// matchers is the priority list. Order matters: more specific
// variants are tried first within a platform family.
var matchers = []matcher{
	{
		name:     "IlluminaNew",
		platform: PlatformIllumina,
		re: regexp.MustCompile(
			`^[@>+](?P<name>[!-~]+?)[:_](?P<run>\d+)[:_](?P<fc>[!-~]+?)[:_](?P<lane>\d+)[:_](?P<tile>\d+)[:_](?P<x>-?\d+\.?\d*)[:_](?P<y>-?\d+\.\d+|\d+)[\s:_|-](?P<read>[12345]|):(?P<filter>[NY]):(?P<control>\d+|O):?(?P<bc>[!-~]*?)(\s+|$)`),
		extract: illuminaExtract,
	},
	{
		name:     "IlluminaNewNoPrefix",
		platform: PlatformIllumina,
		re: regexp.MustCompile(
			`^[@>+](?P<name>[!-~]*?):?(?P<run>\d+)[:_](?P<fc>\d+)[:_](?P<lane>\d+)[:_](?P<tile>\d+)[\s_](?P<read>[12345]|):(?P<filter>[NY]):(?P<control>\d+|O):?(?P<bc>[!-~]*?)(\s+|$)`),
		extract: illuminaExtract,
	},
	{
		name:     "IlluminaOldColon",
		platform: PlatformIllumina,
		re: regexp.MustCompile(
			`^[@>+]?(?P<name>[!-~]+?):(?P<lane>\d+):(?P<tile>\d+):(?P<x>-?\d+\.?\d*)[-:](?P<y>-?\d+\.\d+|-?\d+)_?[012]?(?:#(?P<bc>[!-~]*?)|)\s?(?P<suffix>/[12345]|\\[12345])?(\s+|$)`),
		extract: illuminaExtract,
	},
	{
		name:     "IlluminaOldUnderscore",
		platform: PlatformIllumina,
		re: regexp.MustCompile(
			`^[@>+]?(?P<name>[!-~]+?)_(?P<lane>\d+)_(?P<tile>\d+)_(?P<x>-?\d+\.?\d*)_(?P<y>-?\d+\.\d+|-?\d+)(?:#(?P<bc>[!-~]*?)|)\s?(?P<suffix>/[12345]|\\[12345])?(\s+|$)`),
		extract: illuminaExtract,
	},
	{
		name:     "BgiNew",
		platform: PlatformBGI,
		re: regexp.MustCompile(
			`^[@>+](?P<flowcell>\S{1,3}\d{9}\S{0,3})(?P<lane>L\d)(?P<col>C\d{3})(?P<row>R\d{3})(?P<tile>_?\d{1,8})\S*(\s+|[_|-])(?P<read>[12345]|):(?P<filter>[NY]):(?P<control>\d+):?(?P<bc>[!-~]*?)(\s+|$)`),
		extract: bgiExtract,
	},
	{
		name:     "BgiOld",
		platform: PlatformBGI,
		re: regexp.MustCompile(
			`^[@>+](?P<flowcell>\S{1,3}\d{9}\S{0,3})(?P<lane>L\d)(?P<col>C\d{3})(?P<row>R\d{3})(?P<tile>_?\d{1,8})(?:#(?P<bc>[!-~]*?)|)(?P<suffix>/[1234]\S*|)(\s+|$)`),
		extract: bgiExtract,
	},
	{
		name:     "IlluminaNewShort",
		platform: PlatformIllumina,
		re: regexp.MustCompile(
			`^[@>+](?P<name>[!-~]+?)\s+(?P<read>[12345]|):(?P<filter>[NY]):(?P<control>\d+|O):?(?P<bc>[!-~]*?)(\s+|$)`),
		extract: illuminaExtract,
	},
	{
		name:     "LS454",
		platform: PlatformLS454,
		re: regexp.MustCompile(
			`^[@>+](?P<prefix>[!-~]+_|)(?P<region>[A-Z0-9]{7})(?P<xy>\d{2})(?P<tile>[A-Z0-9]{5})(?P<suffix>/[12345])?(\s+|$)`),
		extract: ls454Extract,
	},
	{
		name:     "IonTorrent",
		platform: PlatformIonTorrent,
		re: regexp.MustCompile(
			`^[@>+](?P<flowcell>[A-Z0-9]{5}):(?P<x>\d{1,5}):(?P<y>\d{1,5})[^#/\s]*(?:#[!-~]*?|)(?P<suffix>/[12345]|\\[12345]|[LR])?(\s+|$)`),
		extract: ionTorrentExtract,
	},
	{
		name:     "PacBio",
		platform: PlatformPacBio,
		re: regexp.MustCompile(
			`^[@>+](?P<name>[!-~]+/[!-~]+/[!-~]+)(?P<suffix>\s+.*|$)`),
		extract: pacbioExtract,
	},
}

// allMatch is the final catch-all, matching anything with a
// whitespace-delimited token after the sigil. It only extracts the
// spot name.
var allMatch = matcher{
	name:     "AllMatch",
	platform: PlatformUndefined,
	re:       regexp.MustCompile(`^[@>+](?P<name>[!-~]+)(\s+|$)`),
	extract: func(m []string, names []string) Fields {
		return Fields{SpotName: group(m, names, "name")}
	},
}
