package auth

import "errors"

// Authentication errors
var (
	ErrInvalidCredentials = errors.New("invalid tenant or api key")
	ErrExpiredToken       = errors.New("token has expired")
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidSession      = errors.New("invalid session cookie")
	ErrSessionExpired      = errors.New("session expired")
	ErrEmptySecret        = errors.New("secret cannot be empty")
)
