package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"blog-cms/backend/internal/audit/domain"
	"blog-cms/backend/internal/platform/clock"
	"blog-cms/backend/internal/telemetry"
)

type mockAuditRepo struct {
	entries   []*domain.AuditLog
	createErr error
}

func (m *mockAuditRepo) GetByID(ctx context.Context, id string) (*domain.AuditLog, error) {
	return nil, nil
}

func (m *mockAuditRepo) ListByUser(ctx context.Context, userID string, limit, offset int32) ([]*domain.AuditLog, error) {
	return nil, nil
}

func (m *mockAuditRepo) Create(ctx context.Context, entry *domain.AuditLog) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.entries = append(m.entries, entry)
	return nil
}

type captureEmitter struct {
	mu     sync.Mutex
	events []*telemetry.Event
	got    chan struct{}
}

func (c *captureEmitter) Emit(ctx context.Context, e *telemetry.Event) error {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
	c.got <- struct{}{}
	return nil
}

func TestLogger_LogEvent_Success(t *testing.T) {
	repo := &mockAuditRepo{}
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	logger := NewLogger(repo, func(context.Context) string { return "192.168.1.1" }, WithClock(clock.NewFake(now)))

	logger.LogEvent(context.Background(), "user-1", domain.ActionLoginSuccess, domain.ResourceAuth, map[string]string{"device_id": "d1"})

	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}
	entry := repo.entries[0]
	if entry.UserID != "user-1" {
		t.Errorf("user_id = %q, want %q", entry.UserID, "user-1")
	}
	if entry.Action != domain.ActionLoginSuccess || entry.Resource != domain.ResourceAuth {
		t.Errorf("action/resource = %q/%q", entry.Action, entry.Resource)
	}
	if entry.IP != "192.168.1.1" {
		t.Errorf("ip = %q, want %q", entry.IP, "192.168.1.1")
	}
	if entry.Metadata != `{"device_id":"d1"}` {
		t.Errorf("metadata = %q", entry.Metadata)
	}
	if entry.ID == "" {
		t.Error("entry ID should be set")
	}
	if !entry.CreatedAt.Equal(now) {
		t.Errorf("created_at = %v, want %v", entry.CreatedAt, now)
	}
}

func TestLogger_LogEvent_NilIPExtractorAndEmptyMetadata(t *testing.T) {
	repo := &mockAuditRepo{}
	logger := NewLogger(repo, nil)

	logger.LogEvent(context.Background(), "user-1", domain.ActionLogout, domain.ResourceSession, nil)

	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}
	if repo.entries[0].IP != "unknown" {
		t.Errorf("ip = %q, want %q", repo.entries[0].IP, "unknown")
	}
	if repo.entries[0].Metadata != "" {
		t.Errorf("metadata = %q, want empty", repo.entries[0].Metadata)
	}
}

func TestLogger_LogEvent_EmitsTelemetry(t *testing.T) {
	em := &captureEmitter{got: make(chan struct{}, 1)}
	logger := NewLogger(nil, nil, WithEmitter(em))

	logger.LogEvent(context.Background(), "user-1", domain.ActionLoginFailure, domain.ResourceAuth, map[string]string{"reason": "bad_password"})

	select {
	case <-em.got:
	case <-time.After(time.Second):
		t.Fatal("event not emitted")
	}
	em.mu.Lock()
	defer em.mu.Unlock()
	e := em.events[0]
	if e.Type != domain.ActionLoginFailure || e.Outcome != telemetry.ResultFailure {
		t.Errorf("event = %+v", e)
	}
	if e.Attributes["reason"] != "bad_password" || e.Attributes["resource"] != domain.ResourceAuth {
		t.Errorf("attributes = %v", e.Attributes)
	}
}

func TestLogger_LogEvent_RepositoryError(t *testing.T) {
	repo := &mockAuditRepo{createErr: errors.New("database error")}
	logger := NewLogger(repo, nil)

	// Should not panic or return error - best-effort logging
	logger.LogEvent(context.Background(), "user-1", "action", "resource", nil)
}

func TestLogger_LogEvent_NilRepo(t *testing.T) {
	logger := NewLogger(nil, nil)

	// Should not panic - no-op when repo is nil
	logger.LogEvent(context.Background(), "user-1", "action", "resource", nil)
}
