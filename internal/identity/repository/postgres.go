package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"blog-cms/backend/internal/db"
	"blog-cms/backend/internal/identity/domain"
)

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns an identity repository that uses the given db for persistence.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// GetByUserAndProvider returns the identity for the given user and provider, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByUserAndProvider(ctx context.Context, userID string, provider domain.IdentityProvider) (*domain.Identity, error) {
	var i domain.Identity
	var prov string
	var hash sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, provider, provider_id, password_hash, created_at, updated_at
		 FROM identities WHERE user_id = $1 AND provider = $2`,
		userID, string(provider),
	).Scan(&i.ID, &i.UserID, &prov, &i.ProviderID, &hash, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	i.Provider = domain.IdentityProvider(prov)
	if hash.Valid {
		i.PasswordHash = hash.String
	}
	return &i, nil
}

// Create persists the identity. The identity must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, i *domain.Identity) error {
	ph := sql.NullString{String: i.PasswordHash, Valid: i.PasswordHash != ""}
	updated := i.UpdatedAt
	if updated.IsZero() {
		updated = i.CreatedAt
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO identities (id, user_id, provider, provider_id, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		i.ID, i.UserID, string(i.Provider), i.ProviderID, ph, i.CreatedAt, updated)
	if err != nil {
		return fmt.Errorf("create identity: %w", err)
	}
	return nil
}

// UpdatePasswordHash replaces the password hash of the identity with the given id.
func (r *PostgresRepository) UpdatePasswordHash(ctx context.Context, id string, passwordHash string) error {
	return UpdatePasswordHash(ctx, r.db, id, passwordHash, time.Now().UTC())
}

// UpdatePasswordHash writes a new hash through tx. Exposed so other repositories can change
// a password inside their own transaction.
func UpdatePasswordHash(ctx context.Context, tx db.DBTX, id string, passwordHash string, at time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE identities SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		id, passwordHash, at)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrIdentityNotFound
	}
	return nil
}

// UpdateLocalPasswordHash writes a new hash for the user's local identity through tx.
func UpdateLocalPasswordHash(ctx context.Context, tx db.DBTX, userID string, passwordHash string, at time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE identities SET password_hash = $3, updated_at = $4 WHERE user_id = $1 AND provider = $2`,
		userID, string(domain.IdentityProviderLocal), passwordHash, at)
	if err != nil {
		return fmt.Errorf("update local password hash: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrIdentityNotFound
	}
	return nil
}

// ErrIdentityNotFound is returned by password updates that matched no identity row.
var ErrIdentityNotFound = errors.New("identity not found")
