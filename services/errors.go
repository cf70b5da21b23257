package services

import "errors"

// Common service-level errors
var (
	// Input errors
	ErrInvalidInput = errors.New("invalid input")

	// Auth errors
	ErrNotSignedIn     = errors.New("no user signed in")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrUnauthorized    = errors.New("unauthorized access")
)
