package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"blog-cms/backend/internal/audit"
	auditdomain "blog-cms/backend/internal/audit/domain"
	identitydomain "blog-cms/backend/internal/identity/domain"
	"blog-cms/backend/internal/notification"
	"blog-cms/backend/internal/platform/clock"
	"blog-cms/backend/internal/policy/engine"
	"blog-cms/backend/internal/security"
	"blog-cms/backend/internal/telemetry"
	userdomain "blog-cms/backend/internal/user/domain"
)

// AuthResult holds the outcome of Login or Refresh.
type AuthResult struct {
	AccessToken    string
	RefreshToken   string
	ExpiresAt      time.Time
	RefreshExpires time.Time
	Principal      identitydomain.Principal
}

// UserRepo is the minimal user repository needed by the auth service.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
}

// IdentityRepo reads and rehashes local password identities.
type IdentityRepo interface {
	GetByUserAndProvider(ctx context.Context, userID string, provider identitydomain.IdentityProvider) (*identitydomain.Identity, error)
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
}

// RoleResolver returns a user's role names and flattened permission identifiers.
type RoleResolver interface {
	ResolveForUser(ctx context.Context, userID string) (roles, permissions []string, err error)
}

// TokenIssuer mints and inspects tokens.
type TokenIssuer interface {
	IssueAccessToken(principal identitydomain.Principal) (string, time.Time, error)
	IssueRefreshToken() (string, error)
	ExtractPrincipalFromExpiredToken(token string) (identitydomain.Principal, error)
}

// Config holds the service's tunables.
type Config struct {
	RefreshTTL time.Duration
	ResetTTL   time.Duration
	// ReuseDetection revokes the whole rotation chain when an already rotated refresh token is presented.
	ReuseDetection bool
	PasswordPolicy PasswordPolicy
}

// Deps are the collaborators of AuthService. Audit, Metrics, Clock and Logger are optional.
type Deps struct {
	Users         UserRepo
	Identities    IdentityRepo
	Roles         RoleResolver
	RefreshTokens RefreshTokenStore
	ResetTokens   ResetTokenStore
	Dispatcher    notification.Dispatcher
	Hasher        security.Hasher
	Tokens        TokenIssuer
	Evaluator     engine.Evaluator
	Audit         audit.AuditLogger
	Metrics       *telemetry.AuthMetrics
	Clock         clock.Clock
	Logger        *slog.Logger
}

// AuthService implements login, refresh-token rotation, logout, password reset, and authorization.
type AuthService struct {
	Deps
	cfg       Config
	dummyHash string
	// background tracks reset tokens being stored and dispatched after RequestPasswordReset returned.
	background sync.WaitGroup
}

// NewAuthService validates deps and returns an AuthService.
func NewAuthService(deps Deps, cfg Config) (*AuthService, error) {
	switch {
	case deps.Users == nil, deps.Identities == nil, deps.Roles == nil:
		return nil, errors.New("auth service: user, identity and role repositories are required")
	case deps.RefreshTokens == nil, deps.ResetTokens == nil:
		return nil, errors.New("auth service: token stores are required")
	case deps.Hasher == nil, deps.Tokens == nil, deps.Evaluator == nil:
		return nil, errors.New("auth service: hasher, token issuer and evaluator are required")
	}
	if deps.Dispatcher == nil {
		deps.Dispatcher = notification.NewLogDispatcher(deps.Logger)
	}
	if deps.Audit == nil {
		deps.Audit = audit.NewLogger(nil, nil)
	}
	if deps.Clock == nil {
		deps.Clock = clock.System{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = time.Hour
	}
	dummy, err := security.NewDummyHash(deps.Hasher)
	if err != nil {
		return nil, fmt.Errorf("auth service: dummy hash: %w", err)
	}
	return &AuthService{Deps: deps, cfg: cfg, dummyHash: dummy}, nil
}

// Login verifies email and password and returns a new access and refresh token pair.
// Every non-infrastructure failure returns ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, email, password, deviceID string) (*AuthResult, error) {
	email = userdomain.NormalizeEmail(email)
	var user *userdomain.User
	if email != "" {
		u, err := s.Users.GetByEmail(ctx, email)
		if err != nil {
			return nil, s.loginError(ctx, fmt.Errorf("login: lookup user: %w", err))
		}
		user = u
	}
	var ident *identitydomain.Identity
	if user != nil {
		i, err := s.Identities.GetByUserAndProvider(ctx, user.ID, identitydomain.IdentityProviderLocal)
		if err != nil {
			return nil, s.loginError(ctx, fmt.Errorf("login: lookup identity: %w", err))
		}
		ident = i
	}
	stored := s.dummyHash
	if ident != nil && ident.PasswordHash != "" {
		stored = ident.PasswordHash
	}
	// Always verify so unknown users cost the same as wrong passwords.
	matched := s.Hasher.Verify(stored, []byte(password))

	reason := ""
	switch {
	case user == nil:
		reason = "unknown_email"
	case ident == nil || ident.PasswordHash == "":
		reason = "no_local_identity"
	case !matched:
		reason = "bad_password"
	case !user.IsActive():
		reason = "account_" + string(user.Status)
	}
	if reason != "" {
		userID := ""
		if user != nil {
			userID = user.ID
		}
		s.Logger.InfoContext(ctx, "auth: login rejected", "user_id", userID, "reason", reason)
		s.Audit.LogEvent(ctx, userID, auditdomain.ActionLoginFailure, auditdomain.ResourceAuth, map[string]string{"reason": reason})
		s.Metrics.LoginAttempt(ctx, telemetry.ResultFailure)
		return nil, ErrInvalidCredentials
	}

	principal, err := s.resolvePrincipal(ctx, user)
	if err != nil {
		return nil, s.loginError(ctx, err)
	}
	now := s.Clock.Now()
	res, refreshValue, err := s.mint(principal, now)
	if err != nil {
		return nil, s.loginError(ctx, err)
	}
	id := uuid.New().String()
	rec := s.newRecord(id, id, user.ID, deviceID, refreshValue, now)
	if err := s.RefreshTokens.Create(ctx, rec); err != nil {
		return nil, s.loginError(ctx, fmt.Errorf("login: store refresh token: %w", err))
	}
	res.RefreshExpires = rec.ExpiresAt

	s.rehashIfNeeded(ctx, ident, password)
	meta := map[string]string{}
	if deviceID != "" {
		meta["device_id"] = deviceID
	}
	s.Audit.LogEvent(ctx, user.ID, auditdomain.ActionLoginSuccess, auditdomain.ResourceAuth, meta)
	s.Metrics.LoginAttempt(ctx, telemetry.ResultSuccess)
	return res, nil
}

func (s *AuthService) loginError(ctx context.Context, err error) error {
	s.Logger.ErrorContext(ctx, "auth: login failed", "error", err)
	s.Metrics.LoginAttempt(ctx, telemetry.ResultError)
	return err
}

// rehashIfNeeded upgrades a legacy or weaker hash after a successful login. Best effort.
func (s *AuthService) rehashIfNeeded(ctx context.Context, ident *identitydomain.Identity, password string) {
	if ident == nil || !s.Hasher.NeedsRehash(ident.PasswordHash) {
		return
	}
	h, err := s.Hasher.Hash([]byte(password))
	if err != nil {
		s.Logger.WarnContext(ctx, "auth: rehash failed", "user_id", ident.UserID, "error", err)
		return
	}
	if err := s.Identities.UpdatePasswordHash(ctx, ident.ID, h); err != nil {
		s.Logger.WarnContext(ctx, "auth: rehash not stored", "user_id", ident.UserID, "error", err)
		return
	}
	s.Logger.InfoContext(ctx, "auth: password hash upgraded", "user_id", ident.UserID)
}

// resolvePrincipal snapshots the user's current roles and permissions.
func (s *AuthService) resolvePrincipal(ctx context.Context, user *userdomain.User) (identitydomain.Principal, error) {
	roles, perms, err := s.Roles.ResolveForUser(ctx, user.ID)
	if err != nil {
		return identitydomain.Principal{}, fmt.Errorf("resolve roles: %w", err)
	}
	return identitydomain.NewPrincipal(user.ID, user.Username, user.Email, roles, perms), nil
}

// mint issues an access token for principal and a fresh opaque refresh value.
func (s *AuthService) mint(principal identitydomain.Principal, now time.Time) (*AuthResult, string, error) {
	access, exp, err := s.Tokens.IssueAccessToken(principal)
	if err != nil {
		return nil, "", fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := s.Tokens.IssueRefreshToken()
	if err != nil {
		return nil, "", fmt.Errorf("issue refresh token: %w", err)
	}
	return &AuthResult{
		AccessToken:    access,
		RefreshToken:   refresh,
		ExpiresAt:      exp,
		RefreshExpires: now.Add(s.cfg.RefreshTTL),
		Principal:      principal,
	}, refresh, nil
}

// Authorize reports whether principal may perform an operation requiring permission.
// Returns ErrUnauthenticated for an empty principal and ErrForbidden when the permission is missing.
func (s *AuthService) Authorize(ctx context.Context, principal identitydomain.Principal, permission string) error {
	if principal.UserID == "" {
		return ErrUnauthenticated
	}
	if permission == "" {
		return nil
	}
	allowed := s.Evaluator.HasPermission(principal, permission)
	s.Metrics.AuthzDecision(ctx, permission, allowed)
	if !allowed {
		return ErrForbidden
	}
	return nil
}
