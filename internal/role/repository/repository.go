package repository

import (
	"context"

	"blog-cms/backend/internal/role/domain"
)

// Repository defines persistence for roles and user role assignments.
type Repository interface {
	// ResolveForUser returns the user's role names and the union of their permissions, both sorted and de-duplicated.
	ResolveForUser(ctx context.Context, userID string) (roles []string, permissions []string, err error)
	GetByName(ctx context.Context, name string) (*domain.Role, error)
	// Create inserts the role and its permissions; an existing role with the same name is left unchanged.
	Create(ctx context.Context, r *domain.Role) error
	AssignToUser(ctx context.Context, userID, roleID string) error
}
