package interceptors

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"blog-cms/backend/internal/audit"
)

// AuditUnary returns a unary server interceptor that records an audit entry after each
// authenticated RPC. skipMethods is the set of full method names to not audit (e.g. health checks).
// Anonymous calls are skipped; the auth service audits its own public operations. Logging is
// best-effort and never fails the RPC.
func AuditUnary(logger audit.AuditLogger, skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		if logger == nil || skipMethods[info.FullMethod] {
			return resp, err
		}
		userID, ok := GetUserID(ctx)
		if !ok {
			return resp, err
		}
		ar := audit.ParseFullMethod(info.FullMethod)
		logger.LogEvent(ctx, userID, ar.Action, ar.Resource, map[string]string{
			"method": info.FullMethod,
			"code":   status.Code(err).String(),
		})
		return resp, err
	}
}
