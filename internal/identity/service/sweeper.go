package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"blog-cms/backend/internal/platform/clock"
)

// Sweeper revokes expired refresh tokens and deletes expired reset tokens.
type Sweeper struct {
	refresh RefreshTokenStore
	resets  ResetTokenStore
	clock   clock.Clock
	logger  *slog.Logger
}

// NewSweeper returns a Sweeper. clk and logger may be nil.
func NewSweeper(refresh RefreshTokenStore, resets ResetTokenStore, clk clock.Clock, logger *slog.Logger) *Sweeper {
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{refresh: refresh, resets: resets, clock: clk, logger: logger}
}

// SweepOnce runs a single pass and returns the number of refresh tokens revoked and reset tokens deleted.
func (s *Sweeper) SweepOnce(ctx context.Context) (revoked, deleted int64, err error) {
	now := s.clock.Now()
	revoked, err = s.refresh.RevokeExpired(ctx, now)
	if err != nil {
		return 0, 0, fmt.Errorf("sweep refresh tokens: %w", err)
	}
	deleted, err = s.resets.DeleteExpired(ctx, now)
	if err != nil {
		return revoked, 0, fmt.Errorf("sweep reset tokens: %w", err)
	}
	return revoked, deleted, nil
}

// Run sweeps every interval until ctx is done. Errors are logged and the loop continues.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		revoked, deleted, err := s.SweepOnce(ctx)
		if err != nil {
			s.logger.Error("sweeper: pass failed", "error", err)
		} else if revoked > 0 || deleted > 0 {
			s.logger.Info("sweeper: pass complete", "refresh_revoked", revoked, "reset_deleted", deleted)
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
