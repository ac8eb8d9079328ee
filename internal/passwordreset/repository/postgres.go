package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"blog-cms/backend/internal/db"
	identityrepo "blog-cms/backend/internal/identity/repository"
	"blog-cms/backend/internal/passwordreset/domain"
	"blog-cms/backend/internal/security"
)

type PostgresRepository struct {
	conn *sql.DB
}

// NewPostgresRepository returns a reset token repository backed by conn.
func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{conn: conn}
}

// Create persists t. The token hash, never the raw value, must be set.
func (r *PostgresRepository) Create(ctx context.Context, t *domain.ResetToken) error {
	_, err := r.conn.ExecContext(ctx,
		`INSERT INTO password_reset_tokens (id, user_id, token_hash, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		t.ID, t.UserID, t.TokenHash, t.CreatedAt, t.ExpiresAt)
	if err != nil {
		return fmt.Errorf("create reset token: %w", err)
	}
	return nil
}

// GetByValue returns the record for the raw token value, or nil if not found.
func (r *PostgresRepository) GetByValue(ctx context.Context, value string) (*domain.ResetToken, error) {
	var t domain.ResetToken
	var consumed sql.NullTime
	err := r.conn.QueryRowContext(ctx,
		`SELECT id, user_id, token_hash, created_at, expires_at, consumed_at
		 FROM password_reset_tokens WHERE token_hash = $1`,
		security.HashToken(value),
	).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.CreatedAt, &t.ExpiresAt, &consumed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if consumed.Valid {
		at := consumed.Time
		t.ConsumedAt = &at
	}
	return &t, nil
}

// FindValid returns the usable record for value and userID.
func (r *PostgresRepository) FindValid(ctx context.Context, value, userID string, now time.Time) (*domain.ResetToken, error) {
	t, err := r.GetByValue(ctx, value)
	if err != nil || t == nil {
		return nil, err
	}
	if err := t.Check(userID, now); err != nil {
		return nil, err
	}
	return t, nil
}

// Consume marks id consumed if it is still unused and unexpired at at.
func (r *PostgresRepository) Consume(ctx context.Context, id string, at time.Time) error {
	return consume(ctx, r.conn, id, at)
}

// ConsumeAndSetPassword consumes id and writes the user's new local password hash atomically.
func (r *PostgresRepository) ConsumeAndSetPassword(ctx context.Context, id, userID, passwordHash string, at time.Time) error {
	return db.WithTx(ctx, r.conn, nil, func(ctx context.Context, tx db.DBTX) error {
		if err := consume(ctx, tx, id, at); err != nil {
			return err
		}
		return identityrepo.UpdateLocalPasswordHash(ctx, tx, userID, passwordHash, at)
	})
}

// DeleteExpired removes tokens that expired before the cutoff.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.conn.ExecContext(ctx, `DELETE FROM password_reset_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("delete expired reset tokens: %w", err)
	}
	return res.RowsAffected()
}

// consume claims id only while it is unused and unexpired. When nothing was claimed it reports
// ErrConsumed if the token was used, otherwise ErrExpired (expired rows may already be swept).
func consume(ctx context.Context, tx db.DBTX, id string, at time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE password_reset_tokens SET consumed_at = $2
		 WHERE id = $1 AND consumed_at IS NULL AND expires_at > $2`,
		id, at)
	if err != nil {
		return fmt.Errorf("consume reset token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var consumed bool
	err = tx.QueryRowContext(ctx,
		`SELECT consumed_at IS NOT NULL FROM password_reset_tokens WHERE id = $1`, id,
	).Scan(&consumed)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return domain.ErrExpired
	case err != nil:
		return fmt.Errorf("consume reset token: %w", err)
	case consumed:
		return domain.ErrConsumed
	default:
		return domain.ErrExpired
	}
}
