package server

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	authv1 "blog-cms/backend/api/auth/v1"
	identitydomain "blog-cms/backend/internal/identity/domain"
	identityservice "blog-cms/backend/internal/identity/service"
	"blog-cms/backend/internal/identity/service/servicetest"
	"blog-cms/backend/internal/platform/clock"
	"blog-cms/backend/internal/policy/engine"
	roledomain "blog-cms/backend/internal/role/domain"
	"blog-cms/backend/internal/security"
	userdomain "blog-cms/backend/internal/user/domain"
)

// mockServiceRegistrar implements grpc.ServiceRegistrar for testing.
type mockServiceRegistrar struct {
	services []string
}

func (m *mockServiceRegistrar) RegisterService(desc *grpc.ServiceDesc, impl interface{}) {
	m.services = append(m.services, desc.ServiceName)
}

func TestRegisterServices_NilDependencies(t *testing.T) {
	mockReg := &mockServiceRegistrar{}
	RegisterServices(mockReg, Deps{})
	want := []string{authv1.ServiceName, "grpc.health.v1.Health"}
	if len(mockReg.services) != len(want) {
		t.Fatalf("registered %v, want %v", mockReg.services, want)
	}
	for i, name := range want {
		if mockReg.services[i] != name {
			t.Errorf("service %d = %q, want %q", i, mockReg.services[i], name)
		}
	}
}

type testEnv struct {
	client authv1.AuthServiceClient
	health healthpb.HealthClient
}

func startServer(t *testing.T, perMinute int) *testEnv {
	t.Helper()
	clk := clock.NewFake(time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC))
	hasher, err := security.NewPasswordHasher("bcrypt", 4, nil)
	if err != nil {
		t.Fatalf("NewPasswordHasher: %v", err)
	}
	tokens, err := security.NewTestTokenProvider(clk)
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	users := servicetest.NewUsers()
	identities := servicetest.NewIdentities()
	roles := servicetest.NewRoles()
	for _, u := range []struct{ id, email, role string }{
		{"u-admin", "admin@x.com", roledomain.RoleAdmin},
		{"u-reader", "reader@x.com", roledomain.RoleReader},
	} {
		hash, err := hasher.Hash([]byte("Secret123"))
		if err != nil {
			t.Fatalf("Hash: %v", err)
		}
		users.Add(&userdomain.User{ID: u.id, Username: u.role, Email: u.email, Status: userdomain.UserStatusActive})
		identities.Add(&identitydomain.Identity{ID: "i-" + u.id, UserID: u.id, Provider: identitydomain.IdentityProviderLocal, PasswordHash: hash})
		roles.Grant(u.id, []string{u.role}, roledomain.DefaultRolePermissions[u.role])
	}
	evaluator := engine.SetEvaluator{}
	svc, err := identityservice.NewAuthService(identityservice.Deps{
		Users:         users,
		Identities:    identities,
		Roles:         roles,
		RefreshTokens: servicetest.NewRefreshTokens(),
		ResetTokens:   servicetest.NewResets(identities),
		Dispatcher:    &servicetest.Dispatcher{},
		Hasher:        hasher,
		Tokens:        tokens,
		Evaluator:     evaluator,
		Clock:         clk,
	}, identityservice.Config{})
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}

	lis := bufconn.Listen(1 << 20)
	s := NewGRPCServer(Deps{
		Auth:               svc,
		Evaluator:          evaluator,
		Tokens:             tokens,
		Health:             health.NewServer(),
		RateLimitPerMinute: perMinute,
	})
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &testEnv{client: authv1.NewAuthServiceClient(conn), health: healthpb.NewHealthClient(conn)}
}

func withBearer(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
}

func login(t *testing.T, env *testEnv, email string) *authv1.AuthTokens {
	t.Helper()
	resp, err := env.client.Login(context.Background(), &authv1.LoginRequest{Email: email, Password: "Secret123"})
	if err != nil {
		t.Fatalf("Login(%s): %v", email, err)
	}
	return resp.GetTokens()
}

func TestServer_EndToEnd(t *testing.T) {
	env := startServer(t, 1000)
	ctx := context.Background()

	hc, err := env.health.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil || hc.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("health = %v, %v", hc.GetStatus(), err)
	}

	_, err = env.client.Login(ctx, &authv1.LoginRequest{Email: "reader@x.com", Password: "wrong"})
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("bad login code = %v", status.Code(err))
	}

	reader := login(t, env, "reader@x.com")
	admin := login(t, env, "admin@x.com")

	if _, err := env.client.WhoAmI(ctx, &authv1.WhoAmIRequest{}); status.Code(err) != codes.Unauthenticated {
		t.Errorf("WhoAmI anonymous: code = %v, want Unauthenticated", status.Code(err))
	}
	who, err := env.client.WhoAmI(withBearer(ctx, reader.AccessToken), &authv1.WhoAmIRequest{})
	if err != nil {
		t.Fatalf("WhoAmI: %v", err)
	}
	if who.UserId != "u-reader" || len(who.Roles) != 1 || who.Roles[0] != roledomain.RoleReader {
		t.Errorf("WhoAmI = %+v", who)
	}

	revoke := &authv1.RevokeUserSessionsRequest{UserId: "u-reader"}
	if _, err := env.client.RevokeUserSessions(ctx, revoke); status.Code(err) != codes.Unauthenticated {
		t.Errorf("revoke anonymous: code = %v, want Unauthenticated", status.Code(err))
	}
	if _, err := env.client.RevokeUserSessions(withBearer(ctx, reader.AccessToken), revoke); status.Code(err) != codes.PermissionDenied {
		t.Errorf("revoke as reader: code = %v, want PermissionDenied", status.Code(err))
	}
	res, err := env.client.RevokeUserSessions(withBearer(ctx, admin.AccessToken), revoke)
	if err != nil {
		t.Fatalf("revoke as admin: %v", err)
	}
	if res.Revoked != 1 {
		t.Errorf("revoked = %d, want 1", res.Revoked)
	}
	if _, err := env.client.Refresh(ctx, &authv1.RefreshRequest{RefreshToken: reader.RefreshToken}); status.Code(err) != codes.Unauthenticated {
		t.Errorf("refresh after revoke: code = %v, want Unauthenticated", status.Code(err))
	}

	next, err := env.client.Refresh(ctx, &authv1.RefreshRequest{RefreshToken: admin.RefreshToken, AccessToken: admin.AccessToken})
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if _, err := env.client.Logout(ctx, &authv1.LogoutRequest{RefreshToken: next.GetTokens().GetRefreshToken()}); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := env.client.RequestPasswordReset(ctx, &authv1.RequestPasswordResetRequest{Email: "missing@x.com"}); err != nil {
		t.Errorf("RequestPasswordReset(missing): %v", err)
	}
}

func TestServer_RateLimit(t *testing.T) {
	env := startServer(t, 5)
	var limited bool
	for i := 0; i < 10 && !limited; i++ {
		// A fresh forwarded address per call must not buy a fresh bucket.
		ctx := metadata.AppendToOutgoingContext(context.Background(), "x-forwarded-for", fmt.Sprintf("203.0.113.%d", i))
		_, err := env.client.RequestPasswordReset(ctx, &authv1.RequestPasswordResetRequest{Email: "missing@x.com"})
		if status.Code(err) == codes.ResourceExhausted {
			limited = true
		}
	}
	if !limited {
		t.Error("rate limit never triggered")
	}
}
