// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package fastqload

import (
	"fmt"

	"github.com/grailbio/seqspot/config"
	"github.com/grailbio/seqspot/errbudget"
)

// physicalFile is one input file flattened out of the four
// --readNPairFiles flags, tagged with the reader id and declared read
// number pass 2 needs to build a spotstore.Read.
type physicalFile struct {
	Path        string
	ReaderID    uint16
	DeclaredNum string // "1".."4"
}

// buildFileList validates the four --readNPairFiles flags against
// each other (spec §6 error codes 10 and 11) and flattens them into
// the single traversal order both passes use: group by group, and
// within a group read1 before read2 before read3 before read4.
func buildFileList(cfg config.Config) ([]physicalFile, *errbudget.Error) {
	lists := []struct {
		name  string
		files [][]string
	}{
		{"read1PairFiles", cfg.Read1PairFiles},
		{"read2PairFiles", cfg.Read2PairFiles},
		{"read3PairFiles", cfg.Read3PairFiles},
		{"read4PairFiles", cfg.Read4PairFiles},
	}

	first := -1
	for i, l := range lists {
		if len(l.files) == 0 {
			continue
		}
		if first == -1 {
			first = i
			continue
		}
		if len(l.files) != len(lists[first].files) {
			return nil, errbudget.New(errbudget.CodeInconsistentGroups,
				fmt.Sprintf("%s: %d", lists[first].name, len(lists[first].files)),
				fmt.Sprintf("%s: %d", l.name, len(l.files)))
		}
	}
	if first == -1 {
		return nil, errbudget.New(errbudget.CodeFileNotFound, "<none>")
	}
	numGroups := len(lists[first].files)

	var files []physicalFile
	var readerID uint16
	for g := 0; g < numGroups; g++ {
		groupFirst := -1
		for i, l := range lists {
			if len(l.files) == 0 {
				continue
			}
			if groupFirst == -1 {
				groupFirst = i
				continue
			}
			if len(l.files[g]) != len(lists[groupFirst].files[g]) {
				return nil, errbudget.New(errbudget.CodeMismatchedPairLists)
			}
		}
		n := len(lists[groupFirst].files[g])
		for i := 0; i < n; i++ {
			for readNum, l := range lists {
				if len(l.files) == 0 {
					continue
				}
				files = append(files, physicalFile{
					Path:        l.files[g][i],
					ReaderID:    readerID,
					DeclaredNum: string(rune('1' + readNum)),
				})
				readerID++
			}
		}
	}
	return files, nil
}
