// Package audit records security-relevant events to the audit_logs table and to OTel logs.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"blog-cms/backend/internal/audit/domain"
	auditrepo "blog-cms/backend/internal/audit/repository"
	"blog-cms/backend/internal/platform/clock"
	"blog-cms/backend/internal/telemetry"
)

// IPExtractor returns the client IP from the request context (e.g. gRPC metadata or peer).
type IPExtractor func(context.Context) string

// AuditLogger writes a single audit event. Used by the auth service and the audit interceptor.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, userID, action, resource string, metadata map[string]string)
}

// Logger implements AuditLogger over the audit repository and an optional OTel event emitter.
type Logger struct {
	repo        auditrepo.Repository
	emitter     telemetry.EventEmitter
	ipExtractor IPExtractor
	clock       clock.Clock
	logger      *slog.Logger
}

// Option configures a Logger.
type Option func(*Logger)

// WithEmitter also exports each event as an OTel log record.
func WithEmitter(e telemetry.EventEmitter) Option { return func(l *Logger) { l.emitter = e } }

// WithClock overrides the time source.
func WithClock(c clock.Clock) Option { return func(l *Logger) { l.clock = c } }

// WithSlog sets the logger used for persistence failures.
func WithSlog(s *slog.Logger) Option { return func(l *Logger) { l.logger = s } }

// NewLogger returns a Logger persisting to repo. repo and ipExtractor may be nil; a nil
// ipExtractor records the IP as "unknown".
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor, opts ...Option) *Logger {
	l := &Logger{repo: repo, ipExtractor: ipExtractor, clock: clock.System{}, logger: slog.Default()}
	for _, o := range opts {
		o(l)
	}
	return l
}

// LogEvent writes one audit log entry. Metadata must not contain secrets.
func (l *Logger) LogEvent(ctx context.Context, userID, action, resource string, metadata map[string]string) {
	ip := "unknown"
	if l.ipExtractor != nil {
		ip = l.ipExtractor(ctx)
	}
	now := l.clock.Now()
	telemetry.EmitAsync(l.emitter, &telemetry.Event{
		Type:       action,
		UserID:     userID,
		IP:         ip,
		Outcome:    outcome(action),
		Attributes: withResource(metadata, resource),
		Time:       now,
	})
	if l.repo == nil {
		return
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		UserID:    userID,
		Action:    action,
		Resource:  resource,
		IP:        ip,
		Metadata:  encodeMetadata(metadata),
		CreatedAt: now,
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		l.logger.Warn("audit: failed to log event", "action", action, "resource", resource, "error", err)
	}
}

func encodeMetadata(m map[string]string) string {
	if len(m) == 0 {
		return ""
	}
	b, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(b)
}

func withResource(m map[string]string, resource string) map[string]string {
	out := make(map[string]string, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	out["resource"] = resource
	return out
}

func outcome(action string) string {
	switch action {
	case domain.ActionLoginFailure, domain.ActionRefreshFailure, domain.ActionRefreshReuse:
		return telemetry.ResultFailure
	default:
		return telemetry.ResultSuccess
	}
}
