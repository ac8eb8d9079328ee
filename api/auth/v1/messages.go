// Package authv1 defines the blog.auth.v1.AuthService contract: request and response messages
// carried by the JSON codec, and the hand-written service descriptor.
package authv1

import "time"

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	DeviceId string `json:"device_id,omitempty"`
}

// AuthTokens is returned by Login and Refresh.
type AuthTokens struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	ExpiresAt        time.Time `json:"expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	UserId           string    `json:"user_id"`
	Roles            []string  `json:"roles,omitempty"`
	Permissions      []string  `json:"permissions,omitempty"`
}

func (t *AuthTokens) GetAccessToken() string {
	if t == nil {
		return ""
	}
	return t.AccessToken
}

func (t *AuthTokens) GetRefreshToken() string {
	if t == nil {
		return ""
	}
	return t.RefreshToken
}

type LoginResponse struct {
	Tokens *AuthTokens `json:"tokens"`
}

func (r *LoginResponse) GetTokens() *AuthTokens {
	if r == nil {
		return nil
	}
	return r.Tokens
}

// RefreshRequest carries the refresh token and, optionally, the last access token issued to the client.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
	AccessToken  string `json:"access_token,omitempty"`
}

type RefreshResponse struct {
	Tokens *AuthTokens `json:"tokens"`
}

func (r *RefreshResponse) GetTokens() *AuthTokens {
	if r == nil {
		return nil
	}
	return r.Tokens
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type LogoutResponse struct{}

type RequestPasswordResetRequest struct {
	Email string `json:"email"`
}

type RequestPasswordResetResponse struct{}

type VerifyPasswordResetTokenRequest struct {
	Token  string `json:"token"`
	UserId string `json:"user_id"`
}

type VerifyPasswordResetTokenResponse struct {
	Valid bool `json:"valid"`
}

type UpdatePasswordRequest struct {
	UserId          string `json:"user_id"`
	Token           string `json:"token"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
}

type UpdatePasswordResponse struct{}

type WhoAmIRequest struct{}

// WhoAmIResponse is the caller's principal as carried by its access token.
type WhoAmIResponse struct {
	UserId      string   `json:"user_id"`
	Username    string   `json:"username"`
	Email       string   `json:"email"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

type RevokeUserSessionsRequest struct {
	UserId string `json:"user_id"`
}

type RevokeUserSessionsResponse struct {
	Revoked int64 `json:"revoked"`
}
