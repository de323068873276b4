package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates a request failed input validation.
	ErrValidation = errors.New("validation failed")
	// ErrConfigMissing indicates a required secret or identifier is not configured.
	ErrConfigMissing = errors.New("missing configuration")
	// ErrUnauthorized indicates the caller did not present valid service credentials.
	ErrUnauthorized = errors.New("unauthorized")
)
