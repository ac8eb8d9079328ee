// Package notification delivers password reset messages to users.
package notification

import (
	"context"
	"net/url"
	"strings"
	"time"
)

// Dispatcher sends a password reset message to email. The message carries userID and token, both of
// which the recipient needs to complete the reset. Implementations must never log the token.
type Dispatcher interface {
	SendPasswordResetMessage(ctx context.Context, userID, email, token string) error
}

// PasswordResetMessage is the payload published for delivery. ResetURL already contains the token
// and the user id.
type PasswordResetMessage struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	ResetURL  string    `json:"reset_url"`
	CreatedAt time.Time `json:"created_at"`
}

// BuildResetURL appends token and userID as the "token" and "user_id" query parameters of base.
// Returns "" when base is empty.
func BuildResetURL(base, token, userID string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return ""
	}
	u, err := url.Parse(base)
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set("token", token)
	q.Set("user_id", userID)
	u.RawQuery = q.Encode()
	return u.String()
}

// MaskEmail keeps the first character of the local part and the domain, for logs.
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}
