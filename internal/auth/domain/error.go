package domain

import "errors"

var (
	// ErrInvalidCredentials covers both unknown email and wrong password;
	// callers must not distinguish the two.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrRefreshReused      = errors.New("invalid or expired refresh token")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrSessionNotFound    = errors.New("session not found")
	ErrPasswordMismatch   = errors.New("current password is incorrect")
	ErrWeakPassword       = errors.New("invalid_password")
	ErrInvalidEmail       = errors.New("invalid_email")
	ErrAlreadyVerified    = errors.New("email already verified")
)
