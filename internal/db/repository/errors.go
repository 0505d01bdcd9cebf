package repository

import "errors"

// Sentinel errors for errors.Is() checks
var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateActiveSubject is returned when issuing a certificate for
	// an email that already has an active (non-revoked, non-expired) one.
	ErrDuplicateActiveSubject = errors.New("active certificate already exists for subject")

	// ErrAlreadyRevoked is returned when revoking a certificate that is
	// already revoked.
	ErrAlreadyRevoked = errors.New("certificate already revoked")

	// ErrUserExists is returned when creating a user with a taken email.
	ErrUserExists = errors.New("user already exists")

	// ErrTokenInvalid is returned when a session token is unknown or expired.
	ErrTokenInvalid = errors.New("invalid or expired token")
)
