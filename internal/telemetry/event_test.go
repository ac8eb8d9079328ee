package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type mockEventEmitter struct {
	mu      sync.Mutex
	events  []*Event
	emitErr error
	done    chan struct{}
}

func (m *mockEventEmitter) Emit(ctx context.Context, event *Event) error {
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	if m.done != nil {
		m.done <- struct{}{}
	}
	return m.emitErr
}

func TestEmitAsync_NilEmitterOrEvent(t *testing.T) {
	// Should not panic
	EmitAsync(nil, &Event{Type: "login"})
	EmitAsync(&mockEventEmitter{}, nil)
}

func TestEmitAsync_Emits(t *testing.T) {
	m := &mockEventEmitter{done: make(chan struct{}, 1)}
	EmitAsync(m, &Event{Type: "login", UserID: "u1"})
	select {
	case <-m.done:
	case <-time.After(time.Second):
		t.Fatal("event not emitted")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) != 1 || m.events[0].UserID != "u1" {
		t.Errorf("events = %+v", m.events)
	}
}

func TestEmitAsync_ErrorIsSwallowed(t *testing.T) {
	m := &mockEventEmitter{emitErr: errors.New("collector down"), done: make(chan struct{}, 1)}
	EmitAsync(m, &Event{Type: "refresh"})
	select {
	case <-m.done:
	case <-time.After(time.Second):
		t.Fatal("event not emitted")
	}
}

func TestShutdownDrainDuration(t *testing.T) {
	if ShutdownDrainDuration < emitTimeout {
		t.Errorf("ShutdownDrainDuration = %v, must be >= %v", ShutdownDrainDuration, emitTimeout)
	}
}
