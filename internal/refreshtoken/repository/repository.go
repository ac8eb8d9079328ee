package repository

import (
	"context"
	"time"

	"blog-cms/backend/internal/refreshtoken/domain"
)

// Repository persists refresh token records. Lookups by value hash the raw token first;
// raw values are never stored.
type Repository interface {
	// Create inserts rt. When rt.DeviceID is set, any other active token of the same user and
	// device is revoked in the same transaction.
	Create(ctx context.Context, rt *domain.RefreshToken) error
	// FindByValue returns the record for the raw token value, or nil if none exists.
	FindByValue(ctx context.Context, value string) (*domain.RefreshToken, error)
	// Revoke marks the record revoked. Revoking an already revoked record is a no-op.
	Revoke(ctx context.Context, id, replacedByID string, reason domain.RevokeReason, at time.Time) error
	// RotateAtomic revokes oldID (only if still active at at) and inserts next in one transaction.
	// Returns domain.ErrTokenNotActive, with nothing written, when oldID was no longer active.
	RotateAtomic(ctx context.Context, oldID string, next *domain.RefreshToken, at time.Time) error
	RevokeFamily(ctx context.Context, familyID string, reason domain.RevokeReason, at time.Time) (int64, error)
	RevokeAllForUser(ctx context.Context, userID string, reason domain.RevokeReason, at time.Time) (int64, error)
	// RevokeExpired marks every unrevoked record past its expiry as revoked and returns how many changed.
	RevokeExpired(ctx context.Context, now time.Time) (int64, error)
}
