package notification

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestBuildResetURL(t *testing.T) {
	testCases := []struct {
		base, token, userID, want string
	}{
		{"https://blog.example.com/reset", "abc", "u1", "https://blog.example.com/reset?token=abc&user_id=u1"},
		{"https://blog.example.com/reset?lang=en", "abc", "u1", "https://blog.example.com/reset?lang=en&token=abc&user_id=u1"},
		{"", "abc", "u1", ""},
		{"  ", "abc", "u1", ""},
		{"https://x/reset", "a+b/c", "u 1", "https://x/reset?token=a%2Bb%2Fc&user_id=u+1"},
	}
	for _, tc := range testCases {
		if got := BuildResetURL(tc.base, tc.token, tc.userID); got != tc.want {
			t.Errorf("BuildResetURL(%q, %q, %q) = %q, want %q", tc.base, tc.token, tc.userID, got, tc.want)
		}
	}
}

func TestMaskEmail(t *testing.T) {
	testCases := map[string]string{
		"alice@x.com": "a***@x.com",
		"a@x.com":     "a***@x.com",
		"@x.com":      "***",
		"nope":        "***",
	}
	for in, want := range testCases {
		if got := MaskEmail(in); got != want {
			t.Errorf("MaskEmail(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLogDispatcher_NeverLogsToken(t *testing.T) {
	var buf bytes.Buffer
	d := NewLogDispatcher(slog.New(slog.NewTextHandler(&buf, nil)))
	if err := d.SendPasswordResetMessage(context.Background(), "u1", "alice@x.com", "secret-token-value"); err != nil {
		t.Fatalf("SendPasswordResetMessage: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "secret-token-value") {
		t.Errorf("log contains token: %s", out)
	}
	if !strings.Contains(out, "a***@x.com") {
		t.Errorf("log missing masked recipient: %s", out)
	}
}
