package mail

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient("key", "https://mail.example.com/send", "no-reply@blog.local", "")
	if c.HTTPClient == nil {
		t.Fatal("HTTPClient should be set")
	}
	if c.HTTPClient.Timeout != defaultTimeout {
		t.Errorf("HTTPClient.Timeout = %v, want %v", c.HTTPClient.Timeout, defaultTimeout)
	}
}

func TestSendPasswordResetMessage_Success(t *testing.T) {
	var got Message
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		if r.Header.Get("Authorization") != "test-key" {
			t.Errorf("Authorization = %q, want test-key", r.Header.Get("Authorization"))
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	c := NewClient("test-key", server.URL, "no-reply@blog.local", "https://blog.example.com/reset")
	if err := c.SendPasswordResetMessage(context.Background(), "u1", "a@x.com", "tok123"); err != nil {
		t.Fatalf("SendPasswordResetMessage: %v", err)
	}
	if got.To != "a@x.com" || got.From != "no-reply@blog.local" {
		t.Errorf("message = %+v", got)
	}
	if !strings.Contains(got.Text, "https://blog.example.com/reset?token=tok123&user_id=u1") {
		t.Errorf("text missing reset link: %q", got.Text)
	}
}

func TestSend_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer server.Close()

	c := NewClient("", server.URL, "s", "")
	err := c.Send(context.Background(), Message{To: "a@x.com"})
	if err == nil {
		t.Fatal("expected error for 502")
	}
	if !strings.Contains(err.Error(), "status=502") || !strings.Contains(err.Error(), "upstream down") {
		t.Errorf("error = %v", err)
	}
}

func TestSend_NotConfigured(t *testing.T) {
	c := NewClient("k", "", "s", "")
	if err := c.Send(context.Background(), Message{}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
}

func TestResetBody_WithoutURLUsesToken(t *testing.T) {
	var got Message
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer server.Close()

	c := NewClient("", server.URL, "s", "")
	if err := c.SendPasswordResetMessage(context.Background(), "u1", "a@x.com", "tok123"); err != nil {
		t.Fatalf("SendPasswordResetMessage: %v", err)
	}
	if !strings.Contains(got.Text, "Code: tok123") || !strings.Contains(got.Text, "Account: u1") {
		t.Errorf("text = %q, want token and user id", got.Text)
	}
}
