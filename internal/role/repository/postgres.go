package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"blog-cms/backend/internal/db"
	"blog-cms/backend/internal/role/domain"
)

type PostgresRepository struct {
	conn *sql.DB
}

// NewPostgresRepository returns a role repository backed by conn.
func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{conn: conn}
}

// ResolveForUser returns the user's role names and their flattened permission set.
// A user with no roles gets empty slices, not an error.
func (r *PostgresRepository) ResolveForUser(ctx context.Context, userID string) ([]string, []string, error) {
	rows, err := r.conn.QueryContext(ctx,
		`SELECT r.name, rp.permission
		 FROM user_roles ur
		 JOIN roles r ON r.id = ur.role_id
		 LEFT JOIN role_permissions rp ON rp.role_id = r.id
		 WHERE ur.user_id = $1`, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve roles: %w", err)
	}
	defer rows.Close()

	roles := []string{}
	perms := []string{}
	for rows.Next() {
		var name string
		var perm sql.NullString
		if err := rows.Scan(&name, &perm); err != nil {
			return nil, nil, err
		}
		roles = append(roles, name)
		if perm.Valid {
			perms = append(perms, perm.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	slices.Sort(roles)
	slices.Sort(perms)
	return slices.Compact(roles), slices.Compact(perms), nil
}

// GetByName returns the role with its permissions, or nil if not found.
func (r *PostgresRepository) GetByName(ctx context.Context, name string) (*domain.Role, error) {
	var role domain.Role
	err := r.conn.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM roles WHERE name = $1`, name,
	).Scan(&role.ID, &role.Name, &role.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	rows, err := r.conn.QueryContext(ctx,
		`SELECT permission FROM role_permissions WHERE role_id = $1 ORDER BY permission`, role.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		role.Permissions = append(role.Permissions, p)
	}
	return &role, rows.Err()
}

// Create inserts the role and its permissions in one transaction.
func (r *PostgresRepository) Create(ctx context.Context, role *domain.Role) error {
	if err := role.Validate(); err != nil {
		return err
	}
	return db.WithTx(ctx, r.conn, nil, func(ctx context.Context, tx db.DBTX) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO roles (id, name, created_at) VALUES ($1, $2, $3) ON CONFLICT (name) DO NOTHING`,
			role.ID, role.Name, role.CreatedAt); err != nil {
			return fmt.Errorf("insert role: %w", err)
		}
		for _, p := range role.Permissions {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO role_permissions (role_id, permission)
				 SELECT id, $2 FROM roles WHERE name = $1
				 ON CONFLICT DO NOTHING`,
				role.Name, p); err != nil {
				return fmt.Errorf("insert role permission: %w", err)
			}
		}
		return nil
	})
}

// AssignToUser grants the role to the user. Assigning twice is a no-op.
func (r *PostgresRepository) AssignToUser(ctx context.Context, userID, roleID string) error {
	_, err := r.conn.ExecContext(ctx,
		`INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		userID, roleID)
	if err != nil {
		return fmt.Errorf("assign role: %w", err)
	}
	return nil
}
