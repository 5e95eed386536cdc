package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeAuditLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestAuditLogger_ClientIPFromContext(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	ctx := WithClientIP(context.Background(), "203.0.113.7")
	al.LogAuthAttempt(ctx, AuditEvent{EventType: "login", UserID: "user-1", Success: true})

	entry := decodeAuditLine(t, &buf)
	assert.Equal(t, "auth", entry["audit_type"])
	assert.Equal(t, "login", entry["event_type"])
	assert.Equal(t, "user-1", entry["user_id"])
	assert.Equal(t, "203.0.113.7", entry["ip_address"])
	assert.Equal(t, "INFO", entry["level"])
}

func TestAuditLogger_ExplicitIPWins(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	ctx := WithClientIP(context.Background(), "203.0.113.7")
	al.LogPasswordReset(ctx, AuditEvent{EventType: "password_reset_consumed", IPAddress: "198.51.100.1", FailureReason: "token_expired"})

	entry := decodeAuditLine(t, &buf)
	assert.Equal(t, "password_reset", entry["audit_type"])
	assert.Equal(t, "198.51.100.1", entry["ip_address"])
	assert.Equal(t, "token_expired", entry["failure_reason"])
	assert.Equal(t, "WARN", entry["level"])
}

func TestAuditLogger_NoClientIP(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	al.LogAuthAttempt(context.Background(), AuditEvent{EventType: "register", Success: true})

	entry := decodeAuditLine(t, &buf)
	assert.NotContains(t, entry, "ip_address")
	assert.Equal(t, "", ClientIPFromContext(context.Background()))
}
