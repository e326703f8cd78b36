package domain

import "errors"

var (
	// ErrInvalidToken covers unknown, expired and already-used tokens;
	// the caller gets no finer-grained signal.
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrRateLimited  = errors.New("too many token requests")
)
