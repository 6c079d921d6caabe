package auth

import "errors"

// Domain errors for token handling.
var (
	ErrTokenInvalid = errors.New("invalid token")
	ErrNoSecret     = errors.New("token secret is not configured")
	ErrScope        = errors.New("token scope not permitted")
)
