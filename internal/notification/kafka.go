package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"blog-cms/backend/internal/platform/clock"
)

const writeTimeout = 5 * time.Second

// Writer is the subset of kafka.Writer used by KafkaDispatcher.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaDispatcher publishes PasswordResetMessage JSON to a topic for the notification worker.
type KafkaDispatcher struct {
	writer   Writer
	resetURL string
	clock    clock.Clock
}

// NewKafkaDispatcher creates a dispatcher writing to topic on brokers. Call Close when shutting down.
func NewKafkaDispatcher(brokers []string, topic, resetURL string) (*KafkaDispatcher, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, errors.New("notification: kafka brokers and topic are required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return NewKafkaDispatcherWithWriter(w, resetURL, clock.System{}), nil
}

// NewKafkaDispatcherWithWriter allows injecting a writer and clock.
func NewKafkaDispatcherWithWriter(w Writer, resetURL string, clk clock.Clock) *KafkaDispatcher {
	if clk == nil {
		clk = clock.System{}
	}
	return &KafkaDispatcher{writer: w, resetURL: resetURL, clock: clk}
}

// SendPasswordResetMessage writes one message keyed by email so messages for a user stay ordered.
func (d *KafkaDispatcher) SendPasswordResetMessage(ctx context.Context, userID, email, token string) error {
	msg := PasswordResetMessage{
		UserID:    userID,
		Email:     email,
		Token:     token,
		ResetURL:  BuildResetURL(d.resetURL, token, userID),
		CreatedAt: d.clock.Now(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("notification: marshal reset message: %w", err)
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := d.writer.WriteMessages(writeCtx, kafka.Message{Key: []byte(email), Value: payload}); err != nil {
		return fmt.Errorf("notification: kafka write: %w", err)
	}
	return nil
}

// Close closes the writer. Safe on a nil dispatcher.
func (d *KafkaDispatcher) Close() error {
	if d == nil || d.writer == nil {
		return nil
	}
	return d.writer.Close()
}
