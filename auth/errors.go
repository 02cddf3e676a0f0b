package auth

import "errors"

// Sentinel errors for outgoing credentials.
var (
	ErrMissingKey   = errors.New("auth: signing key is required")
	ErrMissingToken = errors.New("auth: token is empty")
	ErrNoSource     = errors.New("auth: no credentials configured")
)
