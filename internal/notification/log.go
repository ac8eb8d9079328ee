package notification

import (
	"context"
	"log/slog"
)

// LogDispatcher records that a reset message would have been sent. It never logs the token.
// Intended for development; config rejects it in production.
type LogDispatcher struct {
	logger *slog.Logger
}

// NewLogDispatcher returns a LogDispatcher writing to logger (slog.Default when nil).
func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) SendPasswordResetMessage(ctx context.Context, userID, email, token string) error {
	d.logger.InfoContext(ctx, "notification: password reset message", "user_id", userID, "recipient", MaskEmail(email))
	return nil
}
