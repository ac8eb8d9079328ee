// Package telemetry defines auth security events and metrics exported through OpenTelemetry.
package telemetry

import (
	"context"
	"log/slog"
	"time"
)

// emitTimeout is the max time allowed for a single async emit.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long cmd/server waits after GracefulStop before shutting down OTel
// providers, so in-flight async emits can finish. Must be >= emitTimeout.
const ShutdownDrainDuration = emitTimeout

// Event is a security-relevant occurrence (login, refresh, reset) exported as an OTel log record.
// Attributes must never carry passwords or raw tokens.
type Event struct {
	Type       string
	UserID     string
	IP         string
	Outcome    string
	Attributes map[string]string
	Time       time.Time
}

// EventEmitter emits events. Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *Event) error
}

// EmitAsync runs Emit in a goroutine so the caller is not blocked. emitter and event may be nil.
// The goroutine uses context.Background() with emitTimeout so request cancellation does not abort it.
func EmitAsync(emitter EventEmitter, event *Event) {
	if emitter == nil || event == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := emitter.Emit(ctx, event); err != nil {
			slog.Warn("telemetry: async emit failed", "type", event.Type, "error", err)
		}
	}()
}
