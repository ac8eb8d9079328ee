package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	auditdomain "blog-cms/backend/internal/audit/domain"
	refreshdomain "blog-cms/backend/internal/refreshtoken/domain"
	"blog-cms/backend/internal/security"
	"blog-cms/backend/internal/telemetry"
)

// RefreshTokenStore persists refresh token records; RotateAtomic must revoke and insert in one unit.
type RefreshTokenStore interface {
	Create(ctx context.Context, rt *refreshdomain.RefreshToken) error
	FindByValue(ctx context.Context, value string) (*refreshdomain.RefreshToken, error)
	Revoke(ctx context.Context, id, replacedByID string, reason refreshdomain.RevokeReason, at time.Time) error
	RotateAtomic(ctx context.Context, oldID string, next *refreshdomain.RefreshToken, at time.Time) error
	RevokeFamily(ctx context.Context, familyID string, reason refreshdomain.RevokeReason, at time.Time) (int64, error)
	RevokeAllForUser(ctx context.Context, userID string, reason refreshdomain.RevokeReason, at time.Time) (int64, error)
	RevokeExpired(ctx context.Context, now time.Time) (int64, error)
}

func (s *AuthService) newRecord(id, familyID, userID, deviceID, value string, now time.Time) *refreshdomain.RefreshToken {
	return &refreshdomain.RefreshToken{
		ID:        id,
		UserID:    userID,
		FamilyID:  familyID,
		TokenHash: security.HashToken(value),
		DeviceID:  deviceID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.RefreshTTL),
	}
}

// Refresh exchanges an active refresh token for a new token pair and revokes the presented one.
// accessToken is optional; when given it must carry the same subject as the refresh token. Roles
// and permissions are always re-resolved so the new access token reflects current grants.
// Expired, revoked, or unknown tokens return ErrInvalidRefreshToken without changing the store.
func (s *AuthService) Refresh(ctx context.Context, refreshToken, accessToken string) (*AuthResult, error) {
	if refreshToken == "" {
		return nil, s.refreshRejected(ctx, "", "missing_token")
	}
	rec, err := s.RefreshTokens.FindByValue(ctx, refreshToken)
	if err != nil {
		return nil, s.refreshError(ctx, fmt.Errorf("refresh: lookup: %w", err))
	}
	if rec == nil {
		return nil, s.refreshRejected(ctx, "", "unknown_token")
	}
	now := s.Clock.Now()
	switch rec.Status(now) {
	case refreshdomain.StatusActive:
	case refreshdomain.StatusRotated:
		if s.cfg.ReuseDetection {
			return nil, s.revokeChain(ctx, rec, now)
		}
		return nil, s.refreshRejected(ctx, rec.UserID, "rotated")
	default:
		return nil, s.refreshRejected(ctx, rec.UserID, rec.Status(now).String())
	}

	if accessToken != "" {
		prev, err := s.Tokens.ExtractPrincipalFromExpiredToken(accessToken)
		if err != nil || prev.UserID != rec.UserID {
			return nil, s.refreshRejected(ctx, rec.UserID, "access_token_mismatch")
		}
	}
	user, err := s.Users.GetByID(ctx, rec.UserID)
	if err != nil {
		return nil, s.refreshError(ctx, fmt.Errorf("refresh: lookup user: %w", err))
	}
	if !user.IsActive() {
		return nil, s.refreshRejected(ctx, rec.UserID, "account_inactive")
	}
	principal, err := s.resolvePrincipal(ctx, user)
	if err != nil {
		return nil, s.refreshError(ctx, fmt.Errorf("refresh: %w", err))
	}
	res, value, err := s.mint(principal, now)
	if err != nil {
		return nil, s.refreshError(ctx, fmt.Errorf("refresh: %w", err))
	}
	next := s.newRecord(uuid.New().String(), rec.FamilyID, rec.UserID, rec.DeviceID, value, now)
	if err := s.RefreshTokens.RotateAtomic(ctx, rec.ID, next, now); err != nil {
		if errors.Is(err, refreshdomain.ErrTokenNotActive) {
			return nil, s.refreshRejected(ctx, rec.UserID, "lost_rotation_race")
		}
		return nil, s.refreshError(ctx, fmt.Errorf("refresh: rotate: %w", err))
	}
	res.RefreshExpires = next.ExpiresAt
	s.Audit.LogEvent(ctx, rec.UserID, auditdomain.ActionRefresh, auditdomain.ResourceSession, map[string]string{"family_id": rec.FamilyID})
	s.Metrics.RefreshAttempt(ctx, telemetry.ResultSuccess)
	return res, nil
}

// revokeChain handles a rotated token being presented again: every token in its family is revoked.
func (s *AuthService) revokeChain(ctx context.Context, rec *refreshdomain.RefreshToken, now time.Time) error {
	n, err := s.RefreshTokens.RevokeFamily(ctx, rec.FamilyID, refreshdomain.RevokeReasonReuseDetected, now)
	if err != nil {
		return s.refreshError(ctx, fmt.Errorf("refresh: revoke family: %w", err))
	}
	s.Logger.WarnContext(ctx, "auth: refresh token reuse detected", "user_id", rec.UserID, "family_id", rec.FamilyID, "revoked", n)
	s.Audit.LogEvent(ctx, rec.UserID, auditdomain.ActionRefreshReuse, auditdomain.ResourceSession, map[string]string{
		"family_id": rec.FamilyID,
		"revoked":   fmt.Sprint(n),
	})
	s.Metrics.RefreshReuse(ctx)
	s.Metrics.RefreshAttempt(ctx, telemetry.ResultFailure)
	return ErrRefreshTokenReuse
}

func (s *AuthService) refreshRejected(ctx context.Context, userID, reason string) error {
	s.Logger.InfoContext(ctx, "auth: refresh rejected", "user_id", userID, "reason", reason)
	s.Audit.LogEvent(ctx, userID, auditdomain.ActionRefreshFailure, auditdomain.ResourceSession, map[string]string{"reason": reason})
	s.Metrics.RefreshAttempt(ctx, telemetry.ResultFailure)
	return ErrInvalidRefreshToken
}

func (s *AuthService) refreshError(ctx context.Context, err error) error {
	s.Logger.ErrorContext(ctx, "auth: refresh failed", "error", err)
	s.Metrics.RefreshAttempt(ctx, telemetry.ResultError)
	return err
}

// Logout revokes the refresh token. Unknown, expired, or already revoked tokens are a no-op success.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	rec, err := s.RefreshTokens.FindByValue(ctx, refreshToken)
	if err != nil {
		return fmt.Errorf("logout: lookup: %w", err)
	}
	if rec == nil || rec.RevokedAt != nil {
		return nil
	}
	if err := s.RefreshTokens.Revoke(ctx, rec.ID, "", refreshdomain.RevokeReasonLogout, s.Clock.Now()); err != nil {
		return fmt.Errorf("logout: revoke: %w", err)
	}
	s.Audit.LogEvent(ctx, rec.UserID, auditdomain.ActionLogout, auditdomain.ResourceSession, nil)
	return nil
}

// RevokeUserSessions revokes every active refresh token of userID on behalf of actorID.
// Access tokens already issued stay valid until they expire.
func (s *AuthService) RevokeUserSessions(ctx context.Context, actorID, userID string) (int64, error) {
	if userID == "" {
		return 0, errors.New("revoke sessions: user id is required")
	}
	n, err := s.RefreshTokens.RevokeAllForUser(ctx, userID, refreshdomain.RevokeReasonAdmin, s.Clock.Now())
	if err != nil {
		return 0, fmt.Errorf("revoke sessions: %w", err)
	}
	s.Logger.InfoContext(ctx, "auth: sessions revoked", "actor_id", actorID, "user_id", userID, "revoked", n)
	s.Audit.LogEvent(ctx, actorID, auditdomain.ActionSessionsRevoked, auditdomain.ResourceSession, map[string]string{
		"target_user_id": userID,
		"revoked":        fmt.Sprint(n),
	})
	return n, nil
}
