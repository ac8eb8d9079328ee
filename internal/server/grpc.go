package server

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	authv1 "blog-cms/backend/api/auth/v1"
	"blog-cms/backend/internal/audit"
	identityhandler "blog-cms/backend/internal/identity/handler"
	identityservice "blog-cms/backend/internal/identity/service"
	policydomain "blog-cms/backend/internal/policy/domain"
	"blog-cms/backend/internal/policy/engine"
	"blog-cms/backend/internal/server/interceptors"
)

// Deps holds the dependencies of the gRPC server. Only Tokens is required for the auth
// interceptor; every other field may be nil.
type Deps struct {
	// Auth is the auth service. If nil, auth RPCs return Unimplemented and protected calls are denied.
	Auth *identityservice.AuthService
	// Evaluator guards permission checks made inside handlers.
	Evaluator engine.Evaluator
	// Tokens validates Bearer access tokens.
	Tokens interceptors.AccessTokenParser
	// Policy maps operations to requirements. Defaults to policydomain.DefaultOperationPolicy.
	Policy *policydomain.OperationPolicy
	// Audit records authenticated RPCs. If nil, no RPCs are audited by the interceptor.
	Audit audit.AuditLogger
	// Health serves grpc.health.v1. If nil, a new server is created.
	Health *health.Server
	// RateLimitPerMinute bounds unauthenticated auth calls per client IP; 0 disables it.
	RateLimitPerMinute int
	// ClientIP keys the rate limiter. Defaults to interceptors.ClientIP (peer address only).
	ClientIP func(context.Context) string
	Logger             *slog.Logger
}

// rateLimitedMethods are the public entry points exposed to credential guessing.
var rateLimitedMethods = map[string]bool{
	authv1.AuthService_Login_FullMethodName:                    true,
	authv1.AuthService_Refresh_FullMethodName:                  true,
	authv1.AuthService_RequestPasswordReset_FullMethodName:     true,
	authv1.AuthService_VerifyPasswordResetToken_FullMethodName: true,
	authv1.AuthService_UpdatePassword_FullMethodName:           true,
}

var auditSkipMethods = map[string]bool{
	"/grpc.health.v1.Health/Check": true,
	"/grpc.health.v1.Health/List":  true,
}

// NewGRPCServer returns a server with the interceptor chain (rate limit, auth, authorize, audit),
// the OpenTelemetry stats handler, and every service registered.
func NewGRPCServer(deps Deps, opts ...grpc.ServerOption) *grpc.Server {
	if deps.Policy == nil {
		deps.Policy = policydomain.DefaultOperationPolicy()
	}
	var authz interceptors.Authorizer
	if deps.Auth != nil {
		authz = deps.Auth
	}
	chain := []grpc.UnaryServerInterceptor{
		interceptors.RateLimitUnary(deps.RateLimitPerMinute, rateLimitedMethods, deps.ClientIP),
		interceptors.AuthUnary(deps.Tokens, deps.Policy.PublicMethods()),
		interceptors.AuthorizeUnary(deps.Policy, authz, deps.Logger),
	}
	if deps.Audit != nil {
		chain = append(chain, interceptors.AuditUnary(deps.Audit, auditSkipMethods))
	}
	opts = append([]grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(chain...),
	}, opts...)
	s := grpc.NewServer(opts...)
	RegisterServices(s, deps)
	return s
}

// RegisterServices registers all gRPC services with the given server.
//
// Service → handler mapping:
//   - blog.auth.v1.AuthService → internal/identity/handler
//   - grpc.health.v1.Health    → google.golang.org/grpc/health, driven by internal/health
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	authv1.RegisterAuthServiceServer(s, identityhandler.NewAuthServer(deps.Auth, deps.Evaluator))
	hs := deps.Health
	if hs == nil {
		hs = health.NewServer()
	}
	healthpb.RegisterHealthServer(s, hs)
}
