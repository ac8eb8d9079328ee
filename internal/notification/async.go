package notification

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultSendTimeout bounds a single asynchronous delivery.
const DefaultSendTimeout = 10 * time.Second

// Async runs the wrapped dispatcher in a goroutine so callers never wait on delivery.
// Errors are logged. Wait blocks until in-flight sends finish.
type Async struct {
	next    Dispatcher
	timeout time.Duration
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewAsync wraps next. timeout <= 0 uses DefaultSendTimeout.
func NewAsync(next Dispatcher, timeout time.Duration, logger *slog.Logger) *Async {
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Async{next: next, timeout: timeout, logger: logger}
}

// SendPasswordResetMessage schedules delivery and returns nil immediately.
// The send uses a fresh context so request cancellation does not abort it.
func (a *Async) SendPasswordResetMessage(_ context.Context, userID, email, token string) error {
	if a.next == nil {
		return nil
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		if err := a.next.SendPasswordResetMessage(ctx, userID, email, token); err != nil {
			a.logger.Warn("notification: async send failed", "user_id", userID, "recipient", MaskEmail(email), "error", err)
		}
	}()
	return nil
}

// Wait blocks until all scheduled sends complete.
func (a *Async) Wait() {
	a.wg.Wait()
}
