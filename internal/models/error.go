package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound   = errors.New("resource not found")
	ErrConflict   = errors.New("resource already exists")
	ErrBadRequest = errors.New("bad request")

	// ErrNotLocked is returned by an admin unlock when the subject held no
	// active lock.
	ErrNotLocked = errors.New("subject is not locked")

	// ErrStorageUnavailable marks infrastructure faults. It must never be
	// collapsed into an authentication decision.
	ErrStorageUnavailable = errors.New("storage unavailable")
)
