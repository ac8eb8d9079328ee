package domain

import (
	"errors"
	"time"
)

// ErrTokenNotActive is returned when a rotation or revocation targets a record that is already
// revoked or expired. A concurrent refresh that lost the race sees this error.
var ErrTokenNotActive = errors.New("refresh token is not active")

// RefreshToken is the server-side record of an issued refresh token. Only the SHA-256 hash of the
// token value is stored. FamilyID is the ID of the first record in the rotation chain.
type RefreshToken struct {
	ID           string
	UserID       string
	FamilyID     string
	TokenHash    string
	DeviceID     string // optional
	CreatedAt    time.Time
	ExpiresAt    time.Time
	RevokedAt    *time.Time
	ReplacedBy   string // ID of the record that superseded this one via rotation
	RevokeReason RevokeReason
}

// RevokeReason records why a refresh token stopped being usable.
type RevokeReason string

const (
	RevokeReasonLogout          RevokeReason = "logout"
	RevokeReasonRotated         RevokeReason = "rotated"
	RevokeReasonReuseDetected   RevokeReason = "reuse_detected"
	RevokeReasonExpired         RevokeReason = "expired"
	RevokeReasonPasswordChanged RevokeReason = "password_changed"
	RevokeReasonAdmin           RevokeReason = "admin"
	RevokeReasonSuperseded      RevokeReason = "superseded"
)

// Status is the lifecycle state of a refresh token at a point in time.
type Status int

const (
	StatusActive Status = iota
	StatusRotated
	StatusRevoked
	StatusExpired
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusRotated:
		return "rotated"
	case StatusRevoked:
		return "revoked"
	case StatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Status reports the token's state at now. Revocation wins over expiry.
func (t *RefreshToken) Status(now time.Time) Status {
	switch {
	case t.RevokedAt != nil && t.ReplacedBy != "":
		return StatusRotated
	case t.RevokedAt != nil:
		return StatusRevoked
	case !now.Before(t.ExpiresAt):
		return StatusExpired
	default:
		return StatusActive
	}
}

// IsActive reports whether the token can still be exchanged at now.
func (t *RefreshToken) IsActive(now time.Time) bool {
	return t.Status(now) == StatusActive
}
