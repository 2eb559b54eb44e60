// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package errbudget

import (
	"fmt"
	"path/filepath"
)

// Error is the concrete error type carried through the pipeline.
// It round-trips through JSON telemetry, so its fields are exported
// and stable rather than wrapped in grailbio/base/errors.
type Error struct {
	Code Code
	// Message is the formatted message, including the "[code:N]"
	// prefix and, once File is set, the trailing "[file:line]" suffix.
	Message string
	File    string
	Line    int64
}

// New formats a registry message template with args and returns the
// resulting Error. The "[code:N] " prefix matches the original
// fastq_error's err_code_prefix.
func New(code Code, args ...interface{}) *Error {
	e := registry[code]
	msg := e.message
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	return &Error{Code: code, Message: fmt.Sprintf("[code:%d] %s", int(code), msg)}
}

// WithLocation attaches file/line context, matching fastq_error's
// set_file: the message is never re-derived from raw input, only the
// basename and line are appended, defending against log/terminal
// injection from untrusted defline content.
func (e *Error) WithLocation(file string, line int64) *Error {
	e.File = filepath.Base(file)
	e.Line = line
	if line > 0 {
		e.Message = fmt.Sprintf("%s [%s:%d]", e.Message, e.File, e.Line)
	} else {
		e.Message = fmt.Sprintf("%s [%s]", e.Message, e.File)
	}
	return e
}

func (e *Error) Error() string { return e.Message }
