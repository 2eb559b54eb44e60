// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package defline

import (
	"sync/atomic"

	"github.com/grailbio/seqspot/errbudget"
)

// Parser classifies defline strings against the chain of matchers,
// keeping a last-successful-first cache so a run dominated by one
// platform pays for at most one failed regex match per line.
type Parser struct {
	all     []matcher
	lastIdx int32 // index into all of the most recently successful matcher
	path    string
}

// NewParser creates a Parser. path is the source file path, used for
// nanopore pass/fail/barcode post-processing rules that key off
// directory names and, as its base name, for the file:line location
// attached to parse errors.
func NewParser(path string) *Parser {
	all := make([]matcher, 0, len(matchers)+len(nanoporeMatchers)+1)
	all = append(all, matchers...)
	all = append(all, nanoporeMatchers...)
	all = append(all, allMatch)
	return &Parser{all: all, path: path}
}

// Parse classifies one defline (the full "@..." or ">..." header
// line, including the sigil). On failure it returns a structured
// errbudget.Error naming only the file and line, never the raw
// defline content (defense against log/terminal injection).
func (p *Parser) Parse(line string, lineNo int64) (Fields, *errbudget.Error) {
	if f, ok := p.tryMatcher(int(atomic.LoadInt32(&p.lastIdx)), line); ok {
		return f, nil
	}
	for i := range p.all {
		if i == int(p.lastIdx) {
			continue
		}
		if f, ok := p.tryMatcher(i, line); ok {
			atomic.StoreInt32(&p.lastIdx, int32(i))
			return f, nil
		}
	}
	code := errbudget.CodeDeflineUnrecognized
	return Fields{}, errbudget.New(code, "<redacted>").WithLocation(p.path, lineNo)
}

func (p *Parser) tryMatcher(i int, line string) (Fields, bool) {
	if i < 0 || i >= len(p.all) {
		return Fields{}, false
	}
	mt := p.all[i]
	m := mt.re.FindStringSubmatch(line)
	if m == nil {
		return Fields{}, false
	}
	f := mt.extract(m, mt.re.SubexpNames())
	f.MatcherName = mt.name
	if mt.platform == PlatformNanopore {
		applyNanoporePostProcessing(&f, p.path)
	}
	return f, true
}
