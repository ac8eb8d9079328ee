package handler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	authv1 "blog-cms/backend/api/auth/v1"
	identitydomain "blog-cms/backend/internal/identity/domain"
	"blog-cms/backend/internal/identity/service"
	"blog-cms/backend/internal/identity/service/servicetest"
	"blog-cms/backend/internal/platform/clock"
	"blog-cms/backend/internal/policy/engine"
	roledomain "blog-cms/backend/internal/role/domain"
	"blog-cms/backend/internal/security"
	"blog-cms/backend/internal/server/interceptors"
	userdomain "blog-cms/backend/internal/user/domain"
)

type testSetup struct {
	srv        *AuthServer
	svc        *service.AuthService
	dispatcher *servicetest.Dispatcher
}

func newTestServer(t *testing.T) *testSetup {
	t.Helper()
	clk := clock.NewFake(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	hasher, err := security.NewPasswordHasher("bcrypt", 4, nil)
	if err != nil {
		t.Fatalf("NewPasswordHasher: %v", err)
	}
	tokens, err := security.NewTestTokenProvider(clk)
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	hash, err := hasher.Hash([]byte("Secret123"))
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	users := servicetest.NewUsers()
	users.Add(&userdomain.User{ID: "u1", Username: "alice", Email: "a@x.com", Status: userdomain.UserStatusActive})
	identities := servicetest.NewIdentities()
	identities.Add(&identitydomain.Identity{ID: "i1", UserID: "u1", Provider: identitydomain.IdentityProviderLocal, PasswordHash: hash})
	roles := servicetest.NewRoles()
	roles.Grant("u1", []string{roledomain.RoleReader}, roledomain.DefaultRolePermissions[roledomain.RoleReader])
	dispatcher := &servicetest.Dispatcher{}

	svc, err := service.NewAuthService(service.Deps{
		Users:         users,
		Identities:    identities,
		Roles:         roles,
		RefreshTokens: servicetest.NewRefreshTokens(),
		ResetTokens:   servicetest.NewResets(identities),
		Dispatcher:    dispatcher,
		Hasher:        hasher,
		Tokens:        tokens,
		Evaluator:     engine.SetEvaluator{},
		Clock:         clk,
	}, service.Config{})
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}
	return &testSetup{srv: NewAuthServer(svc, engine.SetEvaluator{}), svc: svc, dispatcher: dispatcher}
}

func wantCode(t *testing.T, err error, want codes.Code) {
	t.Helper()
	st, ok := status.FromError(err)
	if !ok {
		t.Fatalf("error is not a gRPC status: %v", err)
	}
	if st.Code() != want {
		t.Errorf("status code = %v, want %v", st.Code(), want)
	}
}

func TestNilAuthService_Unimplemented(t *testing.T) {
	srv := NewAuthServer(nil, nil)
	ctx := context.Background()
	calls := map[string]func() error{
		"Login": func() error {
			_, err := srv.Login(ctx, &authv1.LoginRequest{Email: "a@x.com", Password: "Secret123"})
			return err
		},
		"Refresh": func() error {
			_, err := srv.Refresh(ctx, &authv1.RefreshRequest{RefreshToken: "t"})
			return err
		},
		"RequestPasswordReset": func() error {
			_, err := srv.RequestPasswordReset(ctx, &authv1.RequestPasswordResetRequest{Email: "a@x.com"})
			return err
		},
		"VerifyPasswordResetToken": func() error {
			_, err := srv.VerifyPasswordResetToken(ctx, &authv1.VerifyPasswordResetTokenRequest{Token: "t", UserId: "u1"})
			return err
		},
		"UpdatePassword": func() error {
			_, err := srv.UpdatePassword(ctx, &authv1.UpdatePasswordRequest{})
			return err
		},
		"RevokeUserSessions": func() error {
			_, err := srv.RevokeUserSessions(ctx, &authv1.RevokeUserSessionsRequest{UserId: "u1"})
			return err
		},
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			err := call()
			if err == nil {
				t.Fatal("expected error for nil auth service")
			}
			wantCode(t, err, codes.Unimplemented)
		})
	}
}

func TestLogout_NilAuthService(t *testing.T) {
	srv := NewAuthServer(nil, nil)
	resp, err := srv.Logout(context.Background(), &authv1.LogoutRequest{RefreshToken: "any-token"})
	if err != nil {
		t.Fatalf("Logout with nil auth service should succeed: %v", err)
	}
	if resp == nil {
		t.Fatal("response should not be nil")
	}
}

func TestAuthErr(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"invalid credentials", service.ErrInvalidCredentials, codes.Unauthenticated},
		{"invalid refresh", service.ErrInvalidRefreshToken, codes.Unauthenticated},
		{"refresh reuse", service.ErrRefreshTokenReuse, codes.Unauthenticated},
		{"unauthenticated", service.ErrUnauthenticated, codes.Unauthenticated},
		{"forbidden", service.ErrForbidden, codes.PermissionDenied},
		{"password mismatch", service.ErrPasswordMismatch, codes.InvalidArgument},
		{"weak password", fmt.Errorf("%w: too short", service.ErrWeakPassword), codes.InvalidArgument},
		{"reset invalid", service.ErrResetTokenInvalid, codes.InvalidArgument},
		{"reset expired", service.ErrResetTokenExpired, codes.FailedPrecondition},
		{"reset consumed", service.ErrResetTokenConsumed, codes.FailedPrecondition},
		{"canceled", fmt.Errorf("refresh: rotate: %w", context.Canceled), codes.Canceled},
		{"infrastructure", errors.New("connection refused"), codes.Internal},
		{"already a status", status.Error(codes.NotFound, "x"), codes.NotFound},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			wantCode(t, authErr(tc.err), tc.want)
		})
	}
}

func TestAuthErr_UniformCredentialMessage(t *testing.T) {
	st, _ := status.FromError(authErr(service.ErrInvalidCredentials))
	if st.Message() != "invalid email or password" {
		t.Errorf("message = %q", st.Message())
	}
	st, _ = status.FromError(authErr(errors.New("pq: relation users does not exist")))
	if st.Message() != "internal error" {
		t.Errorf("internal details leaked: %q", st.Message())
	}
}

func TestAuthResultToProto(t *testing.T) {
	if authResultToProto(nil) != nil {
		t.Error("nil result should map to nil")
	}
	exp := time.Now()
	got := authResultToProto(&service.AuthResult{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    exp,
		Principal:    identitydomain.NewPrincipal("user-1", "alice", "a@x.com", []string{"reader"}, []string{"posts.read"}),
	})
	if got.AccessToken != "access" || got.UserId != "user-1" || !got.ExpiresAt.Equal(exp) {
		t.Errorf("got %+v", got)
	}
	if len(got.Permissions) != 1 || got.Permissions[0] != "posts.read" {
		t.Errorf("permissions = %v", got.Permissions)
	}
}

func TestLoginRefreshLogout(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	login, err := s.srv.Login(ctx, &authv1.LoginRequest{Email: "a@x.com", Password: "Secret123"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if login.GetTokens().GetAccessToken() == "" || login.GetTokens().UserId != "u1" {
		t.Fatalf("tokens = %+v", login.GetTokens())
	}

	refreshed, err := s.srv.Refresh(ctx, &authv1.RefreshRequest{RefreshToken: login.GetTokens().GetRefreshToken()})
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	_, err = s.srv.Refresh(ctx, &authv1.RefreshRequest{RefreshToken: login.GetTokens().GetRefreshToken()})
	wantCode(t, err, codes.Unauthenticated)

	if _, err := s.srv.Logout(ctx, &authv1.LogoutRequest{RefreshToken: refreshed.GetTokens().GetRefreshToken()}); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	_, err = s.srv.Refresh(ctx, &authv1.RefreshRequest{RefreshToken: refreshed.GetTokens().GetRefreshToken()})
	wantCode(t, err, codes.Unauthenticated)
}

func TestLogin_WrongPassword(t *testing.T) {
	s := newTestServer(t)
	_, err := s.srv.Login(context.Background(), &authv1.LoginRequest{Email: "a@x.com", Password: "nope"})
	wantCode(t, err, codes.Unauthenticated)
}

func TestPasswordResetFlow(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	for _, email := range []string{"a@x.com", "missing@x.com"} {
		if _, err := s.srv.RequestPasswordReset(ctx, &authv1.RequestPasswordResetRequest{Email: email}); err != nil {
			t.Fatalf("RequestPasswordReset(%s): %v", email, err)
		}
	}
	s.svc.Wait()
	msgs := s.dispatcher.Messages()
	if len(msgs) != 1 {
		t.Fatalf("dispatched %d messages, want 1", len(msgs))
	}
	// The recipient only knows what the message carried.
	token, userID := msgs[0].Token, msgs[0].UserID

	v, err := s.srv.VerifyPasswordResetToken(ctx, &authv1.VerifyPasswordResetTokenRequest{Token: token, UserId: userID})
	if err != nil || !v.Valid {
		t.Fatalf("Verify = %+v, %v", v, err)
	}
	_, err = s.srv.UpdatePassword(ctx, &authv1.UpdatePasswordRequest{UserId: userID, Token: token, Password: "NewPass456", PasswordConfirm: "Mismatch9"})
	wantCode(t, err, codes.InvalidArgument)

	req := &authv1.UpdatePasswordRequest{UserId: userID, Token: token, Password: "NewPass456", PasswordConfirm: "NewPass456"}
	if _, err := s.srv.UpdatePassword(ctx, req); err != nil {
		t.Fatalf("UpdatePassword: %v", err)
	}
	_, err = s.srv.UpdatePassword(ctx, req)
	wantCode(t, err, codes.FailedPrecondition)

	if _, err := s.srv.Login(ctx, &authv1.LoginRequest{Email: "a@x.com", Password: "NewPass456"}); err != nil {
		t.Fatalf("Login with new password: %v", err)
	}
}

func TestWhoAmI(t *testing.T) {
	srv := NewAuthServer(nil, nil)
	_, err := srv.WhoAmI(context.Background(), &authv1.WhoAmIRequest{})
	wantCode(t, err, codes.Unauthenticated)

	p := identitydomain.NewPrincipal("u1", "alice", "a@x.com", []string{"editor"}, []string{"posts.publish"})
	resp, err := srv.WhoAmI(interceptors.WithPrincipal(context.Background(), p), &authv1.WhoAmIRequest{})
	if err != nil {
		t.Fatalf("WhoAmI: %v", err)
	}
	if resp.UserId != "u1" || resp.Username != "alice" || len(resp.Roles) != 1 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestRevokeUserSessions(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	login, err := s.srv.Login(ctx, &authv1.LoginRequest{Email: "a@x.com", Password: "Secret123"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	_, err = s.srv.RevokeUserSessions(ctx, &authv1.RevokeUserSessionsRequest{UserId: "u1"})
	wantCode(t, err, codes.Unauthenticated)

	reader := identitydomain.NewPrincipal("u2", "bob", "b@x.com", []string{roledomain.RoleReader}, roledomain.DefaultRolePermissions[roledomain.RoleReader])
	_, err = s.srv.RevokeUserSessions(interceptors.WithPrincipal(ctx, reader), &authv1.RevokeUserSessionsRequest{UserId: "u1"})
	wantCode(t, err, codes.PermissionDenied)

	admin := identitydomain.NewPrincipal("u9", "root", "r@x.com", []string{roledomain.RoleAdmin}, roledomain.DefaultRolePermissions[roledomain.RoleAdmin])
	adminCtx := interceptors.WithPrincipal(ctx, admin)
	_, err = s.srv.RevokeUserSessions(adminCtx, &authv1.RevokeUserSessionsRequest{})
	wantCode(t, err, codes.InvalidArgument)

	resp, err := s.srv.RevokeUserSessions(adminCtx, &authv1.RevokeUserSessionsRequest{UserId: "u1"})
	if err != nil {
		t.Fatalf("RevokeUserSessions: %v", err)
	}
	if resp.Revoked != 1 {
		t.Errorf("revoked = %d, want 1", resp.Revoked)
	}
	_, err = s.srv.Refresh(ctx, &authv1.RefreshRequest{RefreshToken: login.GetTokens().GetRefreshToken()})
	wantCode(t, err, codes.Unauthenticated)
}
