package services

import "errors"

var (
	// ErrInvalidCredentials is returned for an unknown email or a wrong password alike
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrTokensDisabled is returned when no signing secret is configured
	ErrTokensDisabled = errors.New("bearer tokens are not configured")
	// ErrNotFound is returned when a requested local account does not exist
	ErrNotFound = errors.New("not found")
)
