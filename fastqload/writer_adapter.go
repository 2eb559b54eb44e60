// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package fastqload

import (
	"github.com/grailbio/seqspot/defline"
	"github.com/grailbio/seqspot/spotstore"
	"github.com/grailbio/seqspot/writer"
)

// writerAdapter satisfies pipeline.Writer. A run has exactly one
// declared instrument platform (mixed platforms are error 70, fatal,
// caught before the pipeline starts), so the adapter fixes it once.
type writerAdapter struct {
	w        *writer.Writer
	platform defline.Platform
}

func (a *writerAdapter) WriteSpot(s spotstore.Spot) error {
	a.w.Write(writer.Row{Spot: &s, Platform: a.platform})
	return a.w.Err()
}
