// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across api/store/ui layers.
var (
	// ErrNotFound indicates the requested entity does not exist on the backend.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates a missing/expired token or rejected credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNoSession indicates an exam operation was requested without an active session.
	ErrNoSession = errors.New("no active session")

	// ErrSubmitInFlight indicates a submission is already pending for the session.
	ErrSubmitInFlight = errors.New("submit already in flight")
)
