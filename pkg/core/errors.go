package core

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error taxonomy
// =============================================================================

// Sentinel errors. Components wrap these with fmt.Errorf("...: %w") so callers
// can classify failures with errors.Is.
var (
	// ErrTemplateUnreadable is returned when a template container cannot be
	// opened or its markup located.
	ErrTemplateUnreadable = errors.New("template unreadable")

	// ErrContainerCorrupt is returned when the container bytes are not a valid
	// document of the declared kind.
	ErrContainerCorrupt = errors.New("document container corrupt")

	// ErrMappingIncomplete is returned when strict confirmation finds unmapped
	// fields, or when a mapping is required but missing.
	ErrMappingIncomplete = errors.New("field mapping incomplete")

	// ErrGenerationFailed marks a failed call to the generation service for one row.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrServiceAuthOrQuota is returned when the service rejects the credential
	// or the quota is exhausted. The credential must be replaced before retrying.
	ErrServiceAuthOrQuota = errors.New("service credential rejected or quota exhausted")

	// ErrServiceTransient is returned for network errors, timeouts and malformed
	// responses. The user may retry.
	ErrServiceTransient = errors.New("service temporarily unavailable")

	// ErrRowCountMismatch is returned when a bulk transformation yields a
	// different number of records than it was given.
	ErrRowCountMismatch = errors.New("row count mismatch")

	// ErrInvalidTransition is returned when an event is not legal in the
	// current session phase.
	ErrInvalidTransition = errors.New("invalid session transition")

	// ErrStaleResult is returned when an asynchronous result arrives after the
	// session state it was computed for has been replaced.
	ErrStaleResult = errors.New("stale result discarded")

	// ErrNoCredential is returned when an AI-dependent operation is requested
	// without a usable credential.
	ErrNoCredential = errors.New("no service credential configured")

	// ErrRowOutOfRange is returned for row indices outside the dataset.
	ErrRowOutOfRange = errors.New("row index out of range")

	// ErrUnknownColumn is returned when a column name is not part of the
	// dataset's column set.
	ErrUnknownColumn = errors.New("unknown column")
)

// RowError names the row and pipeline step that failed.
type RowError struct {
	Row  int
	Step string
	Err  error
}

// Error implements the error interface.
func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %s: %v", e.Row+1, e.Step, e.Err)
}

// Unwrap returns the underlying error.
func (e *RowError) Unwrap() error {
	return e.Err
}

// NewRowError creates a RowError.
func NewRowError(row int, step string, err error) *RowError {
	return &RowError{Row: row, Step: step, Err: err}
}

// IsServiceFailure reports whether err came from the generation service.
func IsServiceFailure(err error) bool {
	return errors.Is(err, ErrServiceAuthOrQuota) || errors.Is(err, ErrServiceTransient)
}
