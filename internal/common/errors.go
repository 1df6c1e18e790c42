// Package common defines shared constants and sentinel errors used across
// the catalog, asset store and transfer layers of DataBazaar. Callers should
// use errors.Is to match these values.
package common

import "errors"

var (
	// Argument and lookup errors.
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")

	// Listing lifecycle errors.
	ErrInvalidState = errors.New("invalid listing state")
	ErrConflict     = errors.New("chunk already finalized")
	ErrIncomplete   = errors.New("listing incomplete")

	// Content verification errors.
	ErrAuthenticationFailure = errors.New("authentication failure")
	ErrIntegrityMismatch     = errors.New("integrity mismatch")

	// Transient backend errors; safe to retry.
	ErrTimeout = errors.New("timeout")

	// Internal invariant violations; never retried.
	ErrFatal = errors.New("fatal internal error")

	// Ownership errors.
	ErrForbidden = errors.New("forbidden")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// IsRetryable reports whether err is a transient failure the caller may retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout)
}
