// Package apperr holds the error taxonomy shared by every layer. Services wrap
// these sentinels; the HTTP layer maps them to status codes with errors.Is.
package apperr

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidPath         = errors.New("invalid path")
	ErrInvalidInput        = errors.New("invalid input")
	ErrIngestionIncomplete = errors.New("project source tree is not materialized")
	ErrConflict            = errors.New("conflict")
	ErrForbidden           = errors.New("forbidden")
	ErrTooLarge            = errors.New("too large")
	ErrTimeout             = errors.New("timed out")

	// ErrInternal marks faults that prevent a job from producing any result.
	ErrInternal = errors.New("internal fault")
)
