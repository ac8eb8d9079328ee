package domain

import (
	"errors"
	"strings"
	"time"
)

// User is a blog account. Credentials live on the local identity, not here.
type User struct {
	ID        string
	Username  string
	Email     string
	Status    UserStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
	UserStatusLocked   UserStatus = "locked"
)

// IsActive reports whether the account may authenticate.
func (u *User) IsActive() bool {
	return u != nil && u.Status == UserStatusActive
}

// NormalizeEmail lowercases and trims an email address for lookup and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.Email == "" {
		return errors.New("email is required")
	}
	if !strings.Contains(u.Email, "@") {
		return errors.New("email is malformed")
	}
	if u.Username == "" {
		return errors.New("username is required")
	}
	switch u.Status {
	case "":
		u.Status = UserStatusActive
	case UserStatusActive, UserStatusDisabled, UserStatusLocked:
	default:
		return errors.New("unknown user status")
	}
	return nil
}
