// Package rbac enforces permission requirements on authenticated RPC contexts.
package rbac

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"blog-cms/backend/internal/identity/domain"
	"blog-cms/backend/internal/policy/engine"
	"blog-cms/backend/internal/server/interceptors"
)

// RequirePermission ensures the caller is authenticated and holds permission.
// Returns the principal on success; Unauthenticated when no principal is in ctx, PermissionDenied when
// the evaluator rejects the permission. An empty permission only requires authentication.
func RequirePermission(ctx context.Context, evaluator engine.Evaluator, permission string) (domain.Principal, error) {
	p, ok := interceptors.GetPrincipal(ctx)
	if !ok {
		return domain.Principal{}, status.Error(codes.Unauthenticated, "authentication required")
	}
	if permission == "" {
		return p, nil
	}
	if evaluator == nil || !evaluator.HasPermission(p, permission) {
		return domain.Principal{}, status.Errorf(codes.PermissionDenied, "missing permission %s", permission)
	}
	return p, nil
}
