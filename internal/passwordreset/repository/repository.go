package repository

import (
	"context"
	"time"

	"blog-cms/backend/internal/passwordreset/domain"
)

// Repository persists password reset tokens.
type Repository interface {
	Create(ctx context.Context, t *domain.ResetToken) error
	// GetByValue hashes value and returns the matching record, or nil if none exists.
	GetByValue(ctx context.Context, value string) (*domain.ResetToken, error)
	// FindValid returns the record for value if it belongs to userID, is unconsumed, and unexpired at now.
	// Otherwise it returns nil and, when a record exists, the domain error explaining why.
	FindValid(ctx context.Context, value, userID string, now time.Time) (*domain.ResetToken, error)
	// Consume marks the token used. Returns domain.ErrConsumed when it was already used.
	Consume(ctx context.Context, id string, at time.Time) error
	// ConsumeAndSetPassword consumes the token and replaces the user's local password hash in one
	// transaction. Returns domain.ErrConsumed, with nothing written, when the token was already used.
	ConsumeAndSetPassword(ctx context.Context, id, userID, passwordHash string, at time.Time) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
