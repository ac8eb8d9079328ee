package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Result labels for attempt counters.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultError   = "error"
)

// AuthMetrics counts authentication and authorization outcomes. A nil *AuthMetrics is a no-op.
type AuthMetrics struct {
	loginAttempts   metric.Int64Counter
	refreshAttempts metric.Int64Counter
	refreshReuse    metric.Int64Counter
	resetRequests   metric.Int64Counter
	authzDecisions  metric.Int64Counter
}

// NewAuthMetrics registers the auth counters on meter.
func NewAuthMetrics(meter metric.Meter) (*AuthMetrics, error) {
	var (
		m   AuthMetrics
		err error
	)
	if m.loginAttempts, err = meter.Int64Counter("auth.login.attempts",
		metric.WithDescription("Login attempts by result")); err != nil {
		return nil, err
	}
	if m.refreshAttempts, err = meter.Int64Counter("auth.refresh.attempts",
		metric.WithDescription("Refresh attempts by result")); err != nil {
		return nil, err
	}
	if m.refreshReuse, err = meter.Int64Counter("auth.refresh.reuse_detected",
		metric.WithDescription("Rotated refresh tokens presented again")); err != nil {
		return nil, err
	}
	if m.resetRequests, err = meter.Int64Counter("auth.password_reset.requests",
		metric.WithDescription("Password reset requests, including unknown emails")); err != nil {
		return nil, err
	}
	if m.authzDecisions, err = meter.Int64Counter("authz.decisions",
		metric.WithDescription("Permission checks by result")); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *AuthMetrics) LoginAttempt(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.loginAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *AuthMetrics) RefreshAttempt(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.refreshAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *AuthMetrics) RefreshReuse(ctx context.Context) {
	if m == nil {
		return
	}
	m.refreshReuse.Add(ctx, 1)
}

func (m *AuthMetrics) PasswordResetRequested(ctx context.Context) {
	if m == nil {
		return
	}
	m.resetRequests.Add(ctx, 1)
}

// AuthzDecision records an allow or deny for permission.
func (m *AuthMetrics) AuthzDecision(ctx context.Context, permission string, allowed bool) {
	if m == nil {
		return
	}
	result := "deny"
	if allowed {
		result = "allow"
	}
	m.authzDecisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", result),
		attribute.String("permission", permission),
	))
}
