package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"blog-cms/backend/internal/db"
	"blog-cms/backend/internal/refreshtoken/domain"
	"blog-cms/backend/internal/security"
)

type PostgresRepository struct {
	conn *sql.DB
}

// NewPostgresRepository returns a refresh token repository backed by conn.
func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{conn: conn}
}

const refreshTokenColumns = `id, user_id, family_id, token_hash, device_id, created_at, expires_at, revoked_at, replaced_by, revoke_reason`

// Create inserts rt, first revoking the current chain head for the same user and device.
// The user row is locked so concurrent logins on one device serialize instead of
// colliding on idx_refresh_tokens_active_device.
func (r *PostgresRepository) Create(ctx context.Context, rt *domain.RefreshToken) error {
	return db.WithTx(ctx, r.conn, nil, func(ctx context.Context, tx db.DBTX) error {
		if rt.DeviceID != "" {
			var locked string
			if err := tx.QueryRowContext(ctx,
				`SELECT id FROM users WHERE id = $1 FOR UPDATE`, rt.UserID,
			).Scan(&locked); err != nil {
				return fmt.Errorf("lock user for device head: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE refresh_tokens SET revoked_at = $3, revoke_reason = $4
				 WHERE user_id = $1 AND device_id = $2 AND revoked_at IS NULL`,
				rt.UserID, rt.DeviceID, rt.CreatedAt, string(domain.RevokeReasonSuperseded)); err != nil {
				return fmt.Errorf("revoke device head: %w", err)
			}
		}
		return insert(ctx, tx, rt)
	})
}

// FindByValue hashes value and returns the matching record, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) FindByValue(ctx context.Context, value string) (*domain.RefreshToken, error) {
	row := r.conn.QueryRowContext(ctx,
		`SELECT `+refreshTokenColumns+` FROM refresh_tokens WHERE token_hash = $1`,
		security.HashToken(value))
	return scanRefreshToken(row)
}

// Revoke marks id revoked unless it already is.
func (r *PostgresRepository) Revoke(ctx context.Context, id, replacedByID string, reason domain.RevokeReason, at time.Time) error {
	_, err := r.conn.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = $2, replaced_by = $3, revoke_reason = $4
		 WHERE id = $1 AND revoked_at IS NULL`,
		id, at, nullString(replacedByID), string(reason))
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RotateAtomic revokes oldID with a conditional update and inserts next in the same transaction.
// Of two concurrent rotations of the same record only one sees a row affected; the other rolls back.
func (r *PostgresRepository) RotateAtomic(ctx context.Context, oldID string, next *domain.RefreshToken, at time.Time) error {
	return db.WithTx(ctx, r.conn, nil, func(ctx context.Context, tx db.DBTX) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE refresh_tokens SET revoked_at = $2, replaced_by = $3, revoke_reason = $4
			 WHERE id = $1 AND revoked_at IS NULL AND expires_at > $2`,
			oldID, at, next.ID, string(domain.RevokeReasonRotated))
		if err != nil {
			return fmt.Errorf("rotate refresh token: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return domain.ErrTokenNotActive
		}
		return insert(ctx, tx, next)
	})
}

// RevokeFamily revokes every still-active record of the rotation chain.
func (r *PostgresRepository) RevokeFamily(ctx context.Context, familyID string, reason domain.RevokeReason, at time.Time) (int64, error) {
	return r.exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = $2, revoke_reason = $3
		 WHERE family_id = $1 AND revoked_at IS NULL`,
		familyID, at, string(reason))
}

// RevokeAllForUser revokes every still-active record of the user.
func (r *PostgresRepository) RevokeAllForUser(ctx context.Context, userID string, reason domain.RevokeReason, at time.Time) (int64, error) {
	return r.exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = $2, revoke_reason = $3
		 WHERE user_id = $1 AND revoked_at IS NULL`,
		userID, at, string(reason))
}

// RevokeExpired revokes records whose expiry has passed.
func (r *PostgresRepository) RevokeExpired(ctx context.Context, now time.Time) (int64, error) {
	return r.exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = $1, revoke_reason = $2
		 WHERE revoked_at IS NULL AND expires_at <= $1`,
		now, string(domain.RevokeReasonExpired))
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("revoke refresh tokens: %w", err)
	}
	return res.RowsAffected()
}

func insert(ctx context.Context, tx db.DBTX, rt *domain.RefreshToken) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO refresh_tokens (id, user_id, family_id, token_hash, device_id, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rt.ID, rt.UserID, rt.FamilyID, rt.TokenHash, nullString(rt.DeviceID), rt.CreatedAt, rt.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

func scanRefreshToken(row *sql.Row) (*domain.RefreshToken, error) {
	var rt domain.RefreshToken
	var device, replacedBy, reason sql.NullString
	var revokedAt sql.NullTime
	err := row.Scan(&rt.ID, &rt.UserID, &rt.FamilyID, &rt.TokenHash, &device,
		&rt.CreatedAt, &rt.ExpiresAt, &revokedAt, &replacedBy, &reason)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	rt.DeviceID = device.String
	rt.ReplacedBy = replacedBy.String
	rt.RevokeReason = domain.RevokeReason(reason.String)
	if revokedAt.Valid {
		t := revokedAt.Time
		rt.RevokedAt = &t
	}
	return &rt, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
