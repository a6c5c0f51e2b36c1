package refresh

import (
	"errors"
	"time"
)

// Rotate outcomes shared by every store implementation.
var (
	ErrNotFound     = errors.New("refresh session not found")
	ErrRevoked      = errors.New("refresh session revoked")
	ErrExpired      = errors.New("refresh session expired")
	ErrHashMismatch = errors.New("refresh secret mismatch")
)

// Record is one persisted refresh session. SecretHash is replaced in place on
// every rotation, so at most one secret is live per session.
type Record struct {
	ID         string
	UserID     string
	SecretHash [32]byte
	IssuedAt   time.Time
	ExpiresAt  time.Time
	Revoked    bool
}

// Active reports whether r can still be redeemed at now.
func (r *Record) Active(now time.Time) bool {
	return r != nil && !r.Revoked && now.Before(r.ExpiresAt)
}
