package interceptors

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"blog-cms/backend/internal/identity/domain"
	policydomain "blog-cms/backend/internal/policy/domain"
)

// Authorizer decides whether principal may perform an operation requiring permission.
// An empty permission means authentication alone suffices.
type Authorizer interface {
	Authorize(ctx context.Context, principal domain.Principal, permission string) error
}

// AuthorizeUnary returns a unary server interceptor enforcing policy. Operations missing from the
// policy are denied. A protected call without a principal gets Unauthenticated; a principal lacking
// the permission gets PermissionDenied. A nil authorizer denies every protected call.
func AuthorizeUnary(policy *policydomain.OperationPolicy, authz Authorizer, logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		rule, ok := policy.Lookup(info.FullMethod)
		if !ok {
			logger.WarnContext(ctx, "authz: operation not in policy", "method", info.FullMethod)
			return nil, status.Error(codes.PermissionDenied, "operation not permitted")
		}
		if rule.Public {
			return handler(ctx, req)
		}
		principal, ok := GetPrincipal(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "authentication required")
		}
		if authz == nil {
			return nil, status.Error(codes.PermissionDenied, "permission denied")
		}
		if err := authz.Authorize(ctx, principal, rule.Permission); err != nil {
			logger.InfoContext(ctx, "authz: denied", "method", info.FullMethod, "user_id", principal.UserID, "permission", rule.Permission)
			return nil, status.Error(codes.PermissionDenied, "permission denied")
		}
		return handler(ctx, req)
	}
}
