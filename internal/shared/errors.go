package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates a request with missing or malformed fields.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates the request cannot proceed against current state.
	ErrConflict = errors.New("conflict")
)
