package interceptors

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"blog-cms/backend/internal/identity/domain"
)

const bearerPrefix = "bearer "

// AccessTokenParser validates an access token and returns the principal it carries.
type AccessTokenParser interface {
	ParseAccessToken(token string) (domain.Principal, error)
}

// AuthUnary returns a unary server interceptor that validates the Bearer access token from gRPC
// metadata and stores its principal in context. publicMethods is the set of full method names that
// do not require a token; on those an invalid token is ignored and the call proceeds anonymously.
// A nil tokens parser treats every call as anonymous.
func AuthUnary(tokens AccessTokenParser, publicMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		token := extractBearer(ctx)
		if tokens == nil {
			token = ""
		}
		public := publicMethods[info.FullMethod]

		if token == "" {
			if public {
				return handler(ctx, req)
			}
			return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
		}

		principal, err := tokens.ParseAccessToken(token)
		if err != nil {
			if public {
				return handler(ctx, req)
			}
			return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
		}

		return handler(WithPrincipal(ctx, principal), req)
	}
}

// extractBearer returns the Bearer token from ctx metadata, or "" if missing or malformed.
func extractBearer(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return ""
	}
	v := strings.TrimSpace(vals[0])
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
