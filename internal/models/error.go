package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Password reset errors
	ErrInvalidResetToken = errors.New("invalid or expired token")
	ErrResetTokenExpired = errors.New("token expired")
	ErrUserNotFound      = errors.New("user not found")
)
