package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecureLogger(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		status   int
		wantPath string
		wantLvl  string
	}{
		{"plain path", "/health", http.StatusOK, "/health", "INFO"},
		{"token redacted", "/reset-password?token=abc123", http.StatusOK, "/reset-password?[REDACTED]", "INFO"},
		{"harmless query kept", "/auth/login?lang=en", http.StatusUnauthorized, "/auth/login?lang=en", "INFO"},
		{"throttled", "/auth/login", http.StatusTooManyRequests, "/auth/login", "WARN"},
		{"server error", "/auth/register", http.StatusInternalServerError, "/auth/register", "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))

			h := SecureLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.target, nil))

			var entry map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
			assert.Equal(t, "http_request", entry["msg"])
			assert.Equal(t, tt.wantPath, entry["path"])
			assert.Equal(t, float64(tt.status), entry["status"])
			assert.Equal(t, tt.wantLvl, entry["level"])
			assert.NotContains(t, buf.String(), "abc123")
		})
	}
}
