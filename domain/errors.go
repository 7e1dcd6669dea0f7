// Package domain holds the error taxonomy shared by every layer of the
// ingestion and search core.
package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure surfaced by the core wraps exactly one of these,
// so callers classify with errors.Is.
var (
	ErrChunking                   = errors.New("chunking failed")
	ErrEmbedding                  = errors.New("embedding failed")
	ErrEmbeddingDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrMetadataWrite              = errors.New("metadata write failed")
	ErrVectorWrite                = errors.New("vector write failed")
	ErrSearchUnavailable          = errors.New("search unavailable")
	ErrReconciliation             = errors.New("reconciliation failed")

	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")
)

// Error attaches a kind and the failing operation to an underlying cause.
type Error struct {
	kind error
	op   string
	err  error
}

// Wrap returns an *Error of the given kind. A nil cause yields a bare kind error.
func Wrap(kind error, op string, err error) error {
	return &Error{kind: kind, op: op, err: err}
}

// Errorf is Wrap with a formatted cause.
func Errorf(kind error, op string, format string, args ...any) error {
	return &Error{kind: kind, op: op, err: fmt.Errorf(format, args...)}
}

// Kind returns the error kind.
func (e *Error) Kind() error { return e.kind }

// Op returns the operation that failed.
func (e *Error) Op() string { return e.op }

func (e *Error) Error() string {
	if e.err == nil {
		return fmt.Sprintf("%s: %s", e.op, e.kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.op, e.kind, e.err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.err == nil {
		return []error{e.kind}
	}
	return []error{e.kind, e.err}
}

// DimensionMismatchError reports vectors or a model whose identity disagrees
// with the collection they are written to or queried against.
type DimensionMismatchError struct {
	Collection    string
	ExpectedModel string
	ActualModel   string
	Expected      int
	Actual        int
}

func (e *DimensionMismatchError) Error() string {
	if e.ExpectedModel != e.ActualModel {
		return fmt.Sprintf("collection %q expects model %q (dim %d), got model %q",
			e.Collection, e.ExpectedModel, e.Expected, e.ActualModel)
	}
	return fmt.Sprintf("collection %q expects dimension %d, got %d", e.Collection, e.Expected, e.Actual)
}

// Is makes the error match ErrEmbeddingDimensionMismatch.
func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrEmbeddingDimensionMismatch
}
