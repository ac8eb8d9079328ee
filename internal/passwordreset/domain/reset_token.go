package domain

import (
	"errors"
	"time"
)

var (
	// ErrMismatchedUser means the token exists but was issued to a different user.
	ErrMismatchedUser = errors.New("reset token belongs to another user")
	// ErrConsumed means the token was already used.
	ErrConsumed = errors.New("reset token already consumed")
	// ErrExpired means the token's validity window has passed.
	ErrExpired = errors.New("reset token expired")
)

// ResetToken is a single-use password reset grant. Only the SHA-256 hash of the emailed value is stored.
type ResetToken struct {
	ID         string
	UserID     string
	TokenHash  string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time
}

// Check reports why the token cannot be used by userID at now, or nil if it can.
// Ownership is checked first so a foreign token reveals nothing about its state.
func (t *ResetToken) Check(userID string, now time.Time) error {
	switch {
	case t.UserID != userID:
		return ErrMismatchedUser
	case t.ConsumedAt != nil:
		return ErrConsumed
	case !now.Before(t.ExpiresAt):
		return ErrExpired
	default:
		return nil
	}
}
