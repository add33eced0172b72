package service

import "errors"

// Sentinel errors returned by the service layer. Handlers map these to
// HTTP statuses; anything else is treated as a store failure.
var (
	// ErrNotFound covers both "no such loop" and cross-owner access
	// attempts, which are deliberately indistinguishable.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput marks requests rejected before any store mutation.
	ErrInvalidInput = errors.New("invalid input")

	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("incorrect email or password")
)
