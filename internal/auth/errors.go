package auth

import "errors"

var (
	ErrMissingToken = errors.New("auth: missing bearer token")
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrUnknownRole  = errors.New("auth: unknown role")
	// ErrWrongDevice means the token was issued for another device.
	ErrWrongDevice = errors.New("auth: token bound to another device")
)
