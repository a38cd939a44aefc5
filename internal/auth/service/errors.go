package service

import "errors"

// Sentinel errors for the auth services. The HTTP boundary collapses all of
// them to one generic 401 so callers cannot distinguish a malformed token
// from a revoked one; logs keep the specific kind.
var (
	ErrNoToken            = errors.New("no token provided")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrUserNotFound       = errors.New("user not found")
	ErrSessionExpired     = errors.New("session expired")
	ErrSessionRevoked     = errors.New("session revoked")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
)
