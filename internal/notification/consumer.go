package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// Reader is the subset of kafka.Reader used by Consumer.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Deliverer performs the actual delivery of a decoded reset message (e.g. the HTTP mail client).
type Deliverer interface {
	DeliverPasswordReset(ctx context.Context, msg PasswordResetMessage) error
}

// Consumer reads PasswordResetMessage records from Kafka and hands them to a Deliverer.
// A failed delivery is retried in place up to maxAttempts before the message is committed and dropped.
// Malformed payloads are committed and dropped.
type Consumer struct {
	reader         Reader
	deliverer      Deliverer
	logger         *slog.Logger
	processTimeout time.Duration
	retryBackoff   time.Duration
	maxAttempts    int
}

// NewConsumer creates a group consumer for topic.
func NewConsumer(brokers []string, topic, groupID string, deliverer Deliverer, logger *slog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 1e6,
	})
	return NewConsumerWithReader(r, deliverer, logger)
}

// NewConsumerWithReader allows injecting a reader.
func NewConsumerWithReader(r Reader, deliverer Deliverer, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		reader:         r,
		deliverer:      deliverer,
		logger:         logger,
		processTimeout: 10 * time.Second,
		retryBackoff:   time.Second,
		maxAttempts:    5,
	}
}

// Run processes messages until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("notification: fetch failed", "error", err)
			if !sleep(ctx, c.retryBackoff) {
				return nil
			}
			continue
		}
		if !c.process(ctx, m) {
			return nil
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil {
			c.logger.Warn("notification: commit failed", "offset", m.Offset, "error", err)
		}
	}
}

var errMalformed = errors.New("malformed reset message")

// process delivers m with retries. It returns false only when ctx ended before the message was settled.
func (c *Consumer) process(ctx context.Context, m kafka.Message) bool {
	for attempt := 1; ; attempt++ {
		err := c.handle(ctx, m)
		if err == nil {
			return true
		}
		if attempt >= c.maxAttempts {
			c.logger.Error("notification: giving up on message", "offset", m.Offset, "attempts", attempt, "error", err)
			return true
		}
		c.logger.Warn("notification: delivery failed, retrying", "offset", m.Offset, "attempt", attempt, "error", err)
		if !sleep(ctx, c.retryBackoff*time.Duration(attempt)) {
			return false
		}
	}
}

func (c *Consumer) handle(ctx context.Context, m kafka.Message) error {
	msg, err := decodeMessage(m.Value)
	if err != nil {
		c.logger.Error("notification: dropping message", "offset", m.Offset, "error", err)
		return nil
	}
	pctx, cancel := context.WithTimeout(ctx, c.processTimeout)
	defer cancel()
	return c.deliverer.DeliverPasswordReset(pctx, msg)
}

func decodeMessage(b []byte) (PasswordResetMessage, error) {
	var msg PasswordResetMessage
	if err := json.Unmarshal(b, &msg); err != nil {
		return PasswordResetMessage{}, fmt.Errorf("%w: %v", errMalformed, err)
	}
	if msg.Email == "" || msg.Token == "" || msg.UserID == "" {
		return PasswordResetMessage{}, fmt.Errorf("%w: missing email, token or user id", errMalformed)
	}
	return msg, nil
}

// Close closes the reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
