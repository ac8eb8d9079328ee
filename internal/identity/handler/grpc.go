package handler

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	authv1 "blog-cms/backend/api/auth/v1"
	"blog-cms/backend/internal/identity/service"
	"blog-cms/backend/internal/platform/rbac"
	"blog-cms/backend/internal/policy/engine"
	roledomain "blog-cms/backend/internal/role/domain"
	"blog-cms/backend/internal/server/interceptors"
)

// AuthServer implements blog.auth.v1.AuthService over the auth service.
type AuthServer struct {
	authv1.UnimplementedAuthServiceServer
	auth      *service.AuthService
	evaluator engine.Evaluator
}

// NewAuthServer returns a new Auth gRPC server. If authSvc is nil, every RPC except Logout and
// WhoAmI returns Unimplemented. evaluator guards RevokeUserSessions.
func NewAuthServer(authSvc *service.AuthService, evaluator engine.Evaluator) *AuthServer {
	return &AuthServer{auth: authSvc, evaluator: evaluator}
}

// Login verifies credentials and returns an access and refresh token pair.
func (s *AuthServer) Login(ctx context.Context, req *authv1.LoginRequest) (*authv1.LoginResponse, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method Login not implemented")
	}
	res, err := s.auth.Login(ctx, req.Email, req.Password, req.DeviceId)
	if err != nil {
		return nil, authErr(err)
	}
	return &authv1.LoginResponse{Tokens: authResultToProto(res)}, nil
}

// Refresh rotates the refresh token and returns a new pair.
func (s *AuthServer) Refresh(ctx context.Context, req *authv1.RefreshRequest) (*authv1.RefreshResponse, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method Refresh not implemented")
	}
	res, err := s.auth.Refresh(ctx, req.RefreshToken, req.AccessToken)
	if err != nil {
		return nil, authErr(err)
	}
	return &authv1.RefreshResponse{Tokens: authResultToProto(res)}, nil
}

// Logout revokes the refresh token. Always succeeds for unknown or already revoked tokens.
func (s *AuthServer) Logout(ctx context.Context, req *authv1.LogoutRequest) (*authv1.LogoutResponse, error) {
	if s.auth == nil {
		return &authv1.LogoutResponse{}, nil
	}
	if err := s.auth.Logout(ctx, req.RefreshToken); err != nil {
		return nil, authErr(err)
	}
	return &authv1.LogoutResponse{}, nil
}

// RequestPasswordReset answers identically whether or not the email is registered.
func (s *AuthServer) RequestPasswordReset(ctx context.Context, req *authv1.RequestPasswordResetRequest) (*authv1.RequestPasswordResetResponse, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method RequestPasswordReset not implemented")
	}
	if err := s.auth.RequestPasswordReset(ctx, req.Email); err != nil {
		return nil, authErr(err)
	}
	return &authv1.RequestPasswordResetResponse{}, nil
}

func (s *AuthServer) VerifyPasswordResetToken(ctx context.Context, req *authv1.VerifyPasswordResetTokenRequest) (*authv1.VerifyPasswordResetTokenResponse, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method VerifyPasswordResetToken not implemented")
	}
	ok, err := s.auth.VerifyPasswordResetToken(ctx, req.Token, req.UserId)
	if err != nil {
		return nil, authErr(err)
	}
	return &authv1.VerifyPasswordResetTokenResponse{Valid: ok}, nil
}

func (s *AuthServer) UpdatePassword(ctx context.Context, req *authv1.UpdatePasswordRequest) (*authv1.UpdatePasswordResponse, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method UpdatePassword not implemented")
	}
	if err := s.auth.UpdatePassword(ctx, req.UserId, req.Token, req.Password, req.PasswordConfirm); err != nil {
		return nil, authErr(err)
	}
	return &authv1.UpdatePasswordResponse{}, nil
}

// WhoAmI returns the principal attached by the auth interceptor.
func (s *AuthServer) WhoAmI(ctx context.Context, _ *authv1.WhoAmIRequest) (*authv1.WhoAmIResponse, error) {
	p, ok := interceptors.GetPrincipal(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "authentication required")
	}
	return &authv1.WhoAmIResponse{
		UserId:      p.UserID,
		Username:    p.Username,
		Email:       p.Email,
		Roles:       p.Roles,
		Permissions: p.Permissions,
	}, nil
}

// RevokeUserSessions revokes every refresh token of the target user. Requires users.sessions.revoke.
func (s *AuthServer) RevokeUserSessions(ctx context.Context, req *authv1.RevokeUserSessionsRequest) (*authv1.RevokeUserSessionsResponse, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method RevokeUserSessions not implemented")
	}
	actor, err := rbac.RequirePermission(ctx, s.evaluator, roledomain.PermUsersSessionsRevoke)
	if err != nil {
		return nil, err
	}
	if req.UserId == "" {
		return nil, status.Error(codes.InvalidArgument, "user_id is required")
	}
	n, err := s.auth.RevokeUserSessions(ctx, actor.UserID, req.UserId)
	if err != nil {
		return nil, authErr(err)
	}
	return &authv1.RevokeUserSessionsResponse{Revoked: n}, nil
}

// authErr maps service errors to gRPC status. Authentication failures share one message.
func authErr(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		return status.Error(codes.Unauthenticated, "invalid email or password")
	case errors.Is(err, service.ErrInvalidRefreshToken), errors.Is(err, service.ErrRefreshTokenReuse):
		return status.Error(codes.Unauthenticated, "invalid or expired refresh token")
	case errors.Is(err, service.ErrUnauthenticated):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, service.ErrForbidden):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, service.ErrPasswordMismatch), errors.Is(err, service.ErrWeakPassword),
		errors.Is(err, service.ErrResetTokenInvalid):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, service.ErrResetTokenExpired), errors.Is(err, service.ErrResetTokenConsumed):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	default:
		slog.Error("auth: internal error", "error", err)
		return status.Error(codes.Internal, "internal error")
	}
}

func authResultToProto(r *service.AuthResult) *authv1.AuthTokens {
	if r == nil {
		return nil
	}
	return &authv1.AuthTokens{
		AccessToken:      r.AccessToken,
		RefreshToken:     r.RefreshToken,
		ExpiresAt:        r.ExpiresAt,
		RefreshExpiresAt: r.RefreshExpires,
		UserId:           r.Principal.UserID,
		Roles:            r.Principal.Roles,
		Permissions:      r.Principal.Permissions,
	}
}
