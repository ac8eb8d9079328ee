package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	auditdomain "blog-cms/backend/internal/audit/domain"
	identityrepo "blog-cms/backend/internal/identity/repository"
	resetdomain "blog-cms/backend/internal/passwordreset/domain"
	refreshdomain "blog-cms/backend/internal/refreshtoken/domain"
	"blog-cms/backend/internal/security"
	userdomain "blog-cms/backend/internal/user/domain"
)

// ResetTokenStore persists password reset tokens. ConsumeAndSetPassword must be atomic.
type ResetTokenStore interface {
	Create(ctx context.Context, t *resetdomain.ResetToken) error
	GetByValue(ctx context.Context, value string) (*resetdomain.ResetToken, error)
	FindValid(ctx context.Context, value, userID string, now time.Time) (*resetdomain.ResetToken, error)
	ConsumeAndSetPassword(ctx context.Context, id, userID, passwordHash string, at time.Time) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// resetIssueTimeout bounds storing and dispatching one reset token in the background.
const resetIssueTimeout = 10 * time.Second

// RequestPasswordReset issues a reset token for an active account and hands it to the dispatcher.
// The result and the work done on the request path are the same whether or not the email is
// registered: the token is stored and dispatched in the background. Failures there are logged only.
// Wait blocks until background issuance finishes.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	email = userdomain.NormalizeEmail(email)
	var user *userdomain.User
	if email != "" {
		u, err := s.Users.GetByEmail(ctx, email)
		if err != nil {
			return fmt.Errorf("request password reset: lookup user: %w", err)
		}
		user = u
	}
	// Token generation and hashing run for unknown emails too.
	value, err := security.NewOpaqueToken()
	if err != nil {
		return fmt.Errorf("request password reset: %w", err)
	}
	hash := security.HashToken(value)
	s.Metrics.PasswordResetRequested(ctx)
	if !user.IsActive() {
		s.Logger.InfoContext(ctx, "auth: password reset for unknown or inactive account")
		return nil
	}

	now := s.Clock.Now()
	rec := &resetdomain.ResetToken{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		TokenHash: hash,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.ResetTTL),
	}
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resetIssueTimeout)
		defer cancel()
		s.issueReset(bctx, user, rec, value)
	}()
	return nil
}

func (s *AuthService) issueReset(ctx context.Context, user *userdomain.User, rec *resetdomain.ResetToken, value string) {
	if err := s.ResetTokens.Create(ctx, rec); err != nil {
		s.Logger.ErrorContext(ctx, "auth: store password reset token failed", "user_id", user.ID, "error", err)
		return
	}
	if err := s.Dispatcher.SendPasswordResetMessage(ctx, user.ID, user.Email, value); err != nil {
		s.Logger.WarnContext(ctx, "auth: password reset dispatch failed", "user_id", user.ID, "error", err)
	}
	s.Audit.LogEvent(ctx, user.ID, auditdomain.ActionPasswordResetRequested, auditdomain.ResourcePassword, nil)
}

// Wait blocks until every reset token scheduled by RequestPasswordReset has been stored and dispatched.
func (s *AuthService) Wait() {
	s.background.Wait()
}

// VerifyPasswordResetToken reports whether token is usable by userID. It never consumes the token.
func (s *AuthService) VerifyPasswordResetToken(ctx context.Context, token, userID string) (bool, error) {
	if token == "" || userID == "" {
		return false, nil
	}
	rec, err := s.ResetTokens.FindValid(ctx, token, userID, s.Clock.Now())
	if err != nil {
		if isResetStateErr(err) {
			return false, nil
		}
		return false, fmt.Errorf("verify password reset token: %w", err)
	}
	return rec != nil, nil
}

// UpdatePassword consumes the reset token and sets the new password in one step, then ends every
// session of the user. Mismatched confirmation is rejected before any store access.
func (s *AuthService) UpdatePassword(ctx context.Context, userID, token, newPassword, confirmPassword string) error {
	if newPassword != confirmPassword {
		return ErrPasswordMismatch
	}
	if err := s.cfg.PasswordPolicy.Validate(newPassword); err != nil {
		return err
	}
	if token == "" || userID == "" {
		return ErrResetTokenInvalid
	}
	now := s.Clock.Now()
	rec, err := s.ResetTokens.GetByValue(ctx, token)
	if err != nil {
		return fmt.Errorf("update password: lookup token: %w", err)
	}
	if rec == nil {
		return ErrResetTokenInvalid
	}
	if err := rec.Check(userID, now); err != nil {
		return mapResetErr(err)
	}
	hash, err := s.Hasher.Hash([]byte(newPassword))
	if err != nil {
		return fmt.Errorf("update password: hash: %w", err)
	}
	if err := s.ResetTokens.ConsumeAndSetPassword(ctx, rec.ID, userID, hash, now); err != nil {
		switch {
		case errors.Is(err, resetdomain.ErrConsumed), errors.Is(err, resetdomain.ErrExpired):
			return mapResetErr(err)
		case errors.Is(err, identityrepo.ErrIdentityNotFound):
			return ErrResetTokenInvalid
		}
		return fmt.Errorf("update password: %w", err)
	}
	n, err := s.RefreshTokens.RevokeAllForUser(ctx, userID, refreshdomain.RevokeReasonPasswordChanged, now)
	if err != nil {
		s.Logger.ErrorContext(ctx, "auth: revoke sessions after password change failed", "user_id", userID, "error", err)
	}
	s.Audit.LogEvent(ctx, userID, auditdomain.ActionPasswordUpdated, auditdomain.ResourcePassword, map[string]string{
		"sessions_revoked": fmt.Sprint(n),
	})
	return nil
}

func isResetStateErr(err error) bool {
	return errors.Is(err, resetdomain.ErrMismatchedUser) ||
		errors.Is(err, resetdomain.ErrConsumed) ||
		errors.Is(err, resetdomain.ErrExpired)
}

func mapResetErr(err error) error {
	switch {
	case errors.Is(err, resetdomain.ErrConsumed):
		return ErrResetTokenConsumed
	case errors.Is(err, resetdomain.ErrExpired):
		return ErrResetTokenExpired
	default:
		return ErrResetTokenInvalid
	}
}
