// Package errors provides error wrapping utilities for context-aware error messages
// and the error kinds shared by the ranking packages.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Error kinds. Callers match them with Is.
var (
	// ErrNotFound means a referenced image id does not exist.
	ErrNotFound = stderrors.New("not found")

	// ErrStorage marks failures of the underlying database.
	ErrStorage = stderrors.New("storage error")

	// ErrNoPairAvailable is returned when no comparison pair can be offered.
	// It is an empty result, not a failure.
	ErrNoPairAvailable = stderrors.New("no pair available")

	// ErrInvalidComparison is returned when a comparison names the same image twice.
	ErrInvalidComparison = stderrors.New("invalid comparison")
)

// Wrap wraps an error with additional context information.
// If err is nil, it returns nil without wrapping.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}

// Storage wraps a persistence failure so that it matches ErrStorage while
// keeping the driver error in the chain.
func Storage(err error, context string) error {
	if err == nil {
		return nil
	}
	return &storageError{context: context, err: err}
}

type storageError struct {
	context string
	err     error
}

func (e *storageError) Error() string {
	return fmt.Sprintf("%s: %v", e.context, e.err)
}

func (e *storageError) Unwrap() []error {
	return []error{ErrStorage, e.err}
}

// NotFound returns an ErrNotFound annotated with the missing id.
func NotFound(kind string, id int64) error {
	return fmt.Errorf("%s %d: %w", kind, id, ErrNotFound)
}

// ExportFailure describes one file that could not be exported.
type ExportFailure struct {
	Source string
	Err    error
}

// ExportPartialFailure is returned by batch exports when some files failed.
// Written holds the files that were exported successfully.
type ExportPartialFailure struct {
	Written  []string
	Failures []ExportFailure
}

func (e *ExportPartialFailure) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "export partially failed: %d written, %d failed", len(e.Written), len(e.Failures))
	for i, f := range e.Failures {
		if i == 3 {
			fmt.Fprintf(&b, "; ... and %d more", len(e.Failures)-i)
			break
		}
		fmt.Fprintf(&b, "; %s: %v", f.Source, f.Err)
	}
	return b.String()
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// New returns an error that formats as the given text.
func New(text string) error {
	return stderrors.New(text)
}
