package entity

import (
	"errors"
	"fmt"
)

// ErrInvalidParameter is returned before any work starts when a job's
// configuration is out of range.
var ErrInvalidParameter = errors.New("invalid parameter")

// ErrPrecursorMissing is returned when an operation requires an artifact
// (color-restored or unoptimized intermediate) that has not been produced.
var ErrPrecursorMissing = errors.New("precursor artifact missing")

// ErrAlreadyRunning is returned when a second extraction of the same kind
// is started while one is active.
var ErrAlreadyRunning = errors.New("extraction already running")

// CodecError wraps a failed invocation of an external codec binary and
// carries its diagnostic output. It is terminal for the job; there are no
// automatic retries.
type CodecError struct {
	Tool       string
	Diagnostic string
	Err        error
}

func (e *CodecError) Error() string {
	if e.Diagnostic != "" {
		return fmt.Sprintf("%s: %v: %s", e.Tool, e.Err, e.Diagnostic)
	}
	return fmt.Sprintf("%s: %v", e.Tool, e.Err)
}

func (e *CodecError) Unwrap() error { return e.Err }
