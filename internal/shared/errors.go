package shared

import "errors"

// Error taxonomy for the admin API. Services wrap these with %w and the
// HTTP layer maps them onto status codes.
var (
	// ErrValidation indicates missing or malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrForbidden indicates a mutation against a protected system entity.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound indicates the target entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates dependent rows block the requested mutation.
	ErrConflict = errors.New("conflict")
	// ErrUpstream indicates a database or identity-provider call failed.
	ErrUpstream = errors.New("upstream failure")
)
