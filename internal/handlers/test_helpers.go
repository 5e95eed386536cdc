package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BradenHooton/authguard/internal/models"
	"github.com/BradenHooton/authguard/internal/ratelimit"
	"github.com/BradenHooton/authguard/internal/services"
	pkghttp "github.com/BradenHooton/authguard/pkg/http"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "192.0.2.10:40000"
	return req
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target any) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"), "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	RegisterFunc func(ctx context.Context, name, email, password string) (*models.User, error)
	LoginFunc    func(ctx context.Context, email, password string) (*services.LoginResult, error)
}

func (m *MockAuthService) Register(ctx context.Context, name, email, password string) (*models.User, error) {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, name, email, password)
	}
	return nil, models.ErrInternalServer
}

func (m *MockAuthService) Login(ctx context.Context, email, password string) (*services.LoginResult, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, email, password)
	}
	return nil, models.ErrUnauthorized
}

// MockPasswordResetService implements PasswordResetServiceInterface for testing
type MockPasswordResetService struct {
	ForgotPasswordFunc func(ctx context.Context, email string) error
	ConsumeFunc        func(ctx context.Context, token, newPassword string) error
}

func (m *MockPasswordResetService) ForgotPassword(ctx context.Context, email string) error {
	if m.ForgotPasswordFunc != nil {
		return m.ForgotPasswordFunc(ctx, email)
	}
	return nil
}

func (m *MockPasswordResetService) Consume(ctx context.Context, token, newPassword string) error {
	if m.ConsumeFunc != nil {
		return m.ConsumeFunc(ctx, token, newPassword)
	}
	return nil
}

// TrackedUpdate is one call recorded by MockAttemptTracker
type TrackedUpdate struct {
	Identity string
	Class    ratelimit.Class
	Success  bool
}

// MockAttemptTracker records every bookkeeping call
type MockAttemptTracker struct {
	mu           sync.Mutex
	Updates      []TrackedUpdate
	FailedLogins []string
	Cleared      []string
	Err          error
}

func (m *MockAttemptTracker) Update(ctx context.Context, identity string, cfg ratelimit.Config, success bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Updates = append(m.Updates, TrackedUpdate{Identity: identity, Class: cfg.Class, Success: success})
	return m.Err
}

func (m *MockAttemptTracker) RecordFailedLogin(ctx context.Context, identity string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailedLogins = append(m.FailedLogins, identity)
	return m.Err
}

func (m *MockAttemptTracker) ClearFailedLogins(ctx context.Context, identity string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Cleared = append(m.Cleared, identity)
	return m.Err
}
