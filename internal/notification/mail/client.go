// Package mail sends transactional email through an HTTP mail provider API.
package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"blog-cms/backend/internal/notification"
)

const defaultTimeout = 15 * time.Second

// ErrNotConfigured is returned when the client has no endpoint.
var ErrNotConfigured = errors.New("mail: API URL not configured")

// Message is the JSON body posted to the provider.
type Message struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

// Client posts messages to BaseURL with APIKey as the Authorization header.
type Client struct {
	APIKey     string
	BaseURL    string
	Sender     string
	ResetURL   string
	HTTPClient *http.Client
}

// NewClient returns a client for baseURL. resetURL is the link base used by SendPasswordResetMessage.
func NewClient(apiKey, baseURL, sender, resetURL string) *Client {
	return &Client{
		APIKey:     apiKey,
		BaseURL:    baseURL,
		Sender:     sender,
		ResetURL:   resetURL,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

// Send posts msg. A non-2xx response is an error carrying the status and body.
func (c *Client) Send(ctx context.Context, msg Message) error {
	if c.BaseURL == "" {
		return ErrNotConfigured
	}
	if msg.From == "" {
		msg.From = c.Sender
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("mail: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("mail: request failed status=%d body=%s", resp.StatusCode, string(b))
	}
	return nil
}

// SendPasswordResetMessage lets the client act as a notification.Dispatcher.
func (c *Client) SendPasswordResetMessage(ctx context.Context, userID, email, token string) error {
	return c.DeliverPasswordReset(ctx, notification.PasswordResetMessage{
		UserID:   userID,
		Email:    email,
		Token:    token,
		ResetURL: notification.BuildResetURL(c.ResetURL, token, userID),
	})
}

// DeliverPasswordReset lets the client act as a notification.Deliverer for the worker.
func (c *Client) DeliverPasswordReset(ctx context.Context, m notification.PasswordResetMessage) error {
	return c.Send(ctx, Message{
		To:      m.Email,
		Subject: "Reset your password",
		Text:    resetBody(m),
	})
}

func resetBody(m notification.PasswordResetMessage) string {
	if m.ResetURL != "" {
		return "Use the link below to choose a new password. It expires soon and works once.\n\n" + m.ResetURL + "\n"
	}
	return "Use this code to choose a new password. It expires soon and works once.\n\n" +
		"Account: " + m.UserID + "\nCode: " + m.Token + "\n"
}
