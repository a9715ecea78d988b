package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrBadRequest     = errors.New("bad request")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrInternalServer = errors.New("internal server error")

	// Configuration errors are deployment mistakes and must fail fast
	ErrInvalidConfig = errors.New("invalid security configuration")

	// Security bookkeeping errors
	ErrTokenGeneration = errors.New("failed to generate secure token")
	ErrEmptyIdentifier = errors.New("identifier must not be empty")
	ErrEmptySessionID  = errors.New("session id must not be empty")
	ErrWeakPassword    = errors.New("password does not meet strength requirements")
)
