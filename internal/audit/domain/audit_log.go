package domain

import "time"

// Actions recorded by the auth core. RPC-level entries from the audit interceptor use verbs derived
// from the method name instead.
const (
	ActionLoginSuccess           = "login_success"
	ActionLoginFailure           = "login_failure"
	ActionRefresh                = "refresh"
	ActionRefreshFailure         = "refresh_failure"
	ActionRefreshReuse           = "refresh_reuse"
	ActionLogout                 = "logout"
	ActionPasswordResetRequested = "password_reset_requested"
	ActionPasswordUpdated        = "password_updated"
	ActionSessionsRevoked        = "sessions_revoked"
)

// Resources recorded by the auth core.
const (
	ResourceAuth     = "auth"
	ResourceSession  = "session"
	ResourcePassword = "password"
)

// AuditLog is one persisted audit event. Metadata is a JSON object or empty.
type AuditLog struct {
	ID        string
	UserID    string
	Action    string
	Resource  string
	IP        string
	Metadata  string
	CreatedAt time.Time
}
