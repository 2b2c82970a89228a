package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mpaulsen/trustgate/internal/auth"
	"github.com/mpaulsen/trustgate/internal/models"
	pkghttp "github.com/mpaulsen/trustgate/pkg/http"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithSessionContext injects a validated session into the request context,
// standing in for the session middleware.
func WithSessionContext(req *http.Request, username string) *http.Request {
	now := time.Now()
	session := &models.Session{
		Token:          "test_token",
		Username:       username,
		Attributes:     models.SessionAttributes{},
		CreatedAt:      now,
		LastActivityAt: now,
	}
	ctx := context.WithValue(req.Context(), auth.SessionContextKey, session)
	return req.WithContext(ctx)
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

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

// MockTrustService implements TrustServiceInterface and AdminServiceInterface
// for testing
type MockTrustService struct {
	LoginFunc              func(ctx context.Context, username, password, ipAddress string) (string, error)
	LogoutFunc             func(ctx context.Context, token string) (bool, error)
	RegisterFunc           func(ctx context.Context, username, password, confirm string) error
	ChangePasswordFunc     func(ctx context.Context, username, oldPassword, newPassword string) error
	ListUsersFunc          func(ctx context.Context) ([]string, error)
	DeleteAccountFunc      func(ctx context.Context, username string) error
	ActiveSessionCountFunc func(ctx context.Context) (int, error)
}

func (m *MockTrustService) Login(ctx context.Context, username, password, ipAddress string) (string, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, username, password, ipAddress)
	}
	return "", models.ErrInvalidCredentials
}

func (m *MockTrustService) Logout(ctx context.Context, token string) (bool, error) {
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx, token)
	}
	return false, nil
}

func (m *MockTrustService) Register(ctx context.Context, username, password, confirm string) error {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, username, password, confirm)
	}
	return nil
}

func (m *MockTrustService) ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error {
	if m.ChangePasswordFunc != nil {
		return m.ChangePasswordFunc(ctx, username, oldPassword, newPassword)
	}
	return nil
}

func (m *MockTrustService) LoginRetryAfter() time.Duration {
	return time.Minute
}

func (m *MockTrustService) ListUsers(ctx context.Context) ([]string, error) {
	if m.ListUsersFunc != nil {
		return m.ListUsersFunc(ctx)
	}
	return []string{}, nil
}

func (m *MockTrustService) DeleteAccount(ctx context.Context, username string) error {
	if m.DeleteAccountFunc != nil {
		return m.DeleteAccountFunc(ctx, username)
	}
	return nil
}

func (m *MockTrustService) ActiveSessionCount(ctx context.Context) (int, error) {
	if m.ActiveSessionCountFunc != nil {
		return m.ActiveSessionCountFunc(ctx)
	}
	return 0, nil
}

// MockRateLimiter implements RateLimiterResetter for testing
type MockRateLimiter struct {
	ResetFunc func(key string)
}

func (m *MockRateLimiter) Reset(key string) {
	if m.ResetFunc != nil {
		m.ResetFunc(key)
	}
}

// MockAuditHistory implements AuditHistoryProvider for testing
type MockAuditHistory struct {
	HistoryFunc func(ctx context.Context, username string, limit int) ([]*models.AuthEvent, error)
}

func (m *MockAuditHistory) History(ctx context.Context, username string, limit int) ([]*models.AuthEvent, error) {
	if m.HistoryFunc != nil {
		return m.HistoryFunc(ctx, username, limit)
	}
	return []*models.AuthEvent{}, nil
}
