package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrEmptyFile         = errors.New("file is empty")
	ErrFileTooLarge      = errors.New("file exceeds maximum size")
	ErrUndetectableText  = errors.New("could not determine text encoding")
	ErrTooManyColumns    = errors.New("column count exceeds maximum")
	ErrNoTables          = errors.New("no tables to combine")
)

// ValidationError reports pre-parse failures for a named file. It is always
// returned as a value, never raised across the batch boundary. Each finding
// wraps the sentinel that triggered it, so callers can match with errors.Is
// through the multi-error chain.
type ValidationError struct {
	File     string
	Findings []error
}

func NewValidationError(file string, findings []error) *ValidationError {
	return &ValidationError{File: file, Findings: findings}
}

func (e *ValidationError) Error() string {
	if len(e.Findings) == 1 {
		return fmt.Sprintf("validation failed for %s: %v", e.File, e.Findings[0])
	}
	return fmt.Sprintf("validation failed for %s: %d checks failed (first: %v)",
		e.File, len(e.Findings), e.Findings[0])
}

func (e *ValidationError) Unwrap() []error { return e.Findings }

// FindingStrings renders the findings for transport payloads and logs.
func (e *ValidationError) FindingStrings() []string {
	out := make([]string, len(e.Findings))
	for i, f := range e.Findings {
		out[i] = f.Error()
	}
	return out
}

// ParseError reports a format-specific failure after the applicable fallback
// chain has been exhausted.
type ParseError struct {
	File   string
	Format string
	Err    error
}

func NewParseError(file, format string, err error) *ParseError {
	return &ParseError{File: file, Format: format, Err: err}
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s as %s: %v", e.File, e.Format, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// BatchFatalError is the one failure mode that aborts an entire batch call:
// the archive container itself is unreadable.
type BatchFatalError struct {
	Archive string
	Err     error
}

func NewBatchFatalError(archive string, err error) *BatchFatalError {
	return &BatchFatalError{Archive: archive, Err: err}
}

func (e *BatchFatalError) Error() string {
	return fmt.Sprintf("cannot open archive %s: %v", e.Archive, e.Err)
}

func (e *BatchFatalError) Unwrap() error { return e.Err }
