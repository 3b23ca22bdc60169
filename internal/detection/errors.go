package detection

import (
	"errors"
	"fmt"
)

// Kind classifies why an analysis request failed.
type Kind string

const (
	// KindMalformedInput means the request envelope itself could not be read.
	// Bad or missing packet fields never produce this; they take defaults.
	KindMalformedInput Kind = "malformed_input"
	// KindInternal means the model failed while fitting or scoring. The whole
	// batch is rejected.
	KindInternal Kind = "internal_failure"
)

// AnalysisError is returned by every analysis entry point that can fail.
type AnalysisError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// Malformed wraps err as a malformed-input failure of op.
func Malformed(op string, err error) error {
	return &AnalysisError{Kind: KindMalformedInput, Op: op, Err: err}
}

// Internal wraps err as an internal failure of op.
func Internal(op string, err error) error {
	return &AnalysisError{Kind: KindInternal, Op: op, Err: err}
}

// KindOf returns the kind carried by err, or KindInternal for any other error.
func KindOf(err error) Kind {
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}
