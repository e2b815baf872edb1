package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lmercier/portcullis/internal/auth"
	"github.com/lmercier/portcullis/internal/models"
	pkghttp "github.com/lmercier/portcullis/pkg/http"
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

// WithSessionCookie attaches a session cookie to the request
func WithSessionCookie(req *http.Request, sessionID string) *http.Request {
	req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: sessionID})
	return req
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

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	LoginFunc           func(ctx context.Context, username, password, currentSessionID, ipAddress, userAgent string) (string, error)
	LogoutFunc          func(ctx context.Context, sessionID string) error
	CurrentUserFunc     func(ctx context.Context, sessionID string) (*models.User, error)
	IsAuthenticatedFunc func(ctx context.Context, sessionID string) bool
}

func (m *MockAuthService) Login(ctx context.Context, username, password, currentSessionID, ipAddress, userAgent string) (string, error) {
	if m.LoginFunc == nil {
		return "", models.ErrInvalidCredentials
	}
	return m.LoginFunc(ctx, username, password, currentSessionID, ipAddress, userAgent)
}

func (m *MockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.LogoutFunc == nil {
		return nil
	}
	return m.LogoutFunc(ctx, sessionID)
}

func (m *MockAuthService) CurrentUser(ctx context.Context, sessionID string) (*models.User, error) {
	if m.CurrentUserFunc == nil {
		return nil, models.ErrSessionNotFound
	}
	return m.CurrentUserFunc(ctx, sessionID)
}

func (m *MockAuthService) IsAuthenticated(ctx context.Context, sessionID string) bool {
	if m.IsAuthenticatedFunc == nil {
		return false
	}
	return m.IsAuthenticatedFunc(ctx, sessionID)
}
