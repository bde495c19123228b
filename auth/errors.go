// Package auth implements credential registration, password hashing and
// signed session tokens.
package auth

import "errors"

var (
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrExpiredToken       = errors.New("token expired")
)

// ValidationError carries a message the client can act on.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
