package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/lmercier/portcullis/internal/auth"
	"github.com/lmercier/portcullis/internal/handlers"
	middlewareCustom "github.com/lmercier/portcullis/internal/middleware"
	"github.com/lmercier/portcullis/internal/repositories"
	"github.com/lmercier/portcullis/internal/routes"
	"github.com/lmercier/portcullis/internal/services"
	pkgauth "github.com/lmercier/portcullis/pkg/auth"
	pkglogger "github.com/lmercier/portcullis/pkg/logger"
)

// TestServer runs the real router and middleware stack on in-process stores:
// a sqlite user store plus memory attempt and session stores.
type TestServer struct {
	Server       *httptest.Server
	Users        *repositories.SQLiteUserRepository
	AttemptStore *repositories.MemoryAttemptStore
	SessionStore *repositories.MemorySessionStore
}

// NewTestServer wires the full application the way main does, minus the
// external backends.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	users, err := repositories.NewSQLiteUserRepository(filepath.Join(t.TempDir(), "users.db"))
	if err != nil {
		t.Fatalf("failed to open sqlite store: %v", err)
	}

	attemptStore := repositories.NewMemoryAttemptStore()
	sessionStore := repositories.NewMemorySessionStore()

	tracker := services.NewAttemptTracker(attemptStore, logger)
	sessionManager := auth.NewSessionManager(sessionStore, users, logger)
	csrfSigner := auth.NewCSRFSigner("integration-test-secret-0123456789")
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{})

	authService := services.NewAuthService(
		users,
		tracker,
		sessionManager,
		pkgauth.Verifier{},
		timingDelay,
		logger,
		pkglogger.NewAuditLogger(logger),
	)

	authHandler := handlers.NewAuthHandler(authService, csrfSigner, auth.CookieConfig{}, nil)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: "test"}))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(r, authHandler, csrfSigner, logger)

	server := httptest.NewServer(r)

	ts := &TestServer{
		Server:       server,
		Users:        users,
		AttemptStore: attemptStore,
		SessionStore: sessionStore,
	}
	t.Cleanup(func() {
		server.Close()
		users.Close()
	})
	return ts
}

// Client is an HTTP client with a cookie jar, standing in for one browser.
type Client struct {
	http      *http.Client
	baseURL   string
	csrfToken string
}

// NewClient creates a fresh browser-like client against the test server.
func (ts *TestServer) NewClient(t *testing.T) *Client {
	t.Helper()

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("failed to create cookie jar: %v", err)
	}
	return &Client{
		http:    &http.Client{Jar: jar},
		baseURL: ts.Server.URL,
	}
}

// Get performs a GET request, carrying the client's cookies.
func (c *Client) Get(t *testing.T, path string) *http.Response {
	t.Helper()

	resp, err := c.http.Get(c.baseURL + path)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	return resp
}

// Post performs a JSON POST, attaching the client's anti-forgery token if it
// has fetched one.
func (c *Client) Post(t *testing.T, path string, body interface{}) *http.Response {
	t.Helper()

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bodyReader)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.csrfToken != "" {
		req.Header.Set("X-CSRF-Token", c.csrfToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		t.Fatalf("POST %s failed: %v", path, err)
	}
	return resp
}

// FetchCSRFToken retrieves and remembers the anti-forgery token, as the
// frontend does before its first form submission.
func (c *Client) FetchCSRFToken(t *testing.T) string {
	t.Helper()

	resp := c.Get(t, "/api/get_csrf_token")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get_csrf_token returned %d", resp.StatusCode)
	}

	var body map[string]string
	DecodeJSON(t, resp, &body)
	c.csrfToken = body["csrf_token"]
	if c.csrfToken == "" {
		t.Fatal("empty csrf token")
	}
	return c.csrfToken
}

// DecodeJSON decodes and closes a response body.
func DecodeJSON(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()

	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}
