package service

import "errors"

// Sentinel errors for the auth service; the handler maps them to gRPC codes.
var (
	// Authentication failures. Messages are uniform; the reason is only logged and audited.
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")
	ErrRefreshTokenReuse   = errors.New("refresh token reuse detected; session chain revoked")

	// Authorization failures: not logged in vs logged in without the permission.
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("permission denied")

	// Validation failures.
	ErrPasswordMismatch   = errors.New("password and confirmation do not match")
	ErrWeakPassword       = errors.New("password does not meet policy")
	ErrResetTokenInvalid  = errors.New("invalid password reset token")
	ErrResetTokenExpired  = errors.New("password reset token expired")
	ErrResetTokenConsumed = errors.New("password reset token already used")
)
