package service

import "errors"

// Sentinel errors shared by the services; handlers map these to HTTP codes.
var (
	// ErrUnauthorized maps to 401 and forces a client-side logout
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden maps to 403: ownership or scope mismatch, never retried
	ErrForbidden = errors.New("forbidden")
	// ErrConflict maps to 409: duplicate primary property, re-upload of a
	// completed blob, or a lost upload-lock race
	ErrConflict = errors.New("conflict")
	// ErrNotFound maps to 422 in this API's convention: a referenced
	// entity is missing, which the client can correct
	ErrNotFound = errors.New("referenced entity not found")
)

// ValidationError carries per-field messages; maps to 422.
type ValidationError struct {
	Field  string
	Detail string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Detail
}

// NewValidationError builds a single-field validation failure
func NewValidationError(field, detail string) *ValidationError {
	return &ValidationError{Field: field, Detail: detail}
}
