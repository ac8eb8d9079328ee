// Package engine decides whether a principal holds a permission.
package engine

import (
	"blog-cms/backend/internal/identity/domain"
)

// Evaluator answers permission checks. HasPermission must be total and deterministic:
// the same principal snapshot and permission always give the same answer.
type Evaluator interface {
	HasPermission(principal domain.Principal, permission string) bool
}

// SetEvaluator checks membership in the principal's precomputed permission set. It never
// touches storage; the set was flattened across roles when the access token was issued.
type SetEvaluator struct{}

// HasPermission reports whether permission is in principal.Permissions.
func (SetEvaluator) HasPermission(principal domain.Principal, permission string) bool {
	return principal.HasPermission(permission)
}
