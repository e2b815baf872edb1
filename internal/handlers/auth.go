package handlers

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/lmercier/portcullis/internal/auth"
	"github.com/lmercier/portcullis/internal/models"
	pkghttp "github.com/lmercier/portcullis/pkg/http"
)

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Login(ctx context.Context, username, password, currentSessionID, ipAddress, userAgent string) (string, error)
	Logout(ctx context.Context, sessionID string) error
	CurrentUser(ctx context.Context, sessionID string) (*models.User, error)
	IsAuthenticated(ctx context.Context, sessionID string) bool
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service      AuthServiceInterface
	csrf         *auth.CSRFSigner
	cookieConfig auth.CookieConfig
	ipConfig     *pkghttp.IPConfig
}

func NewAuthHandler(service AuthServiceInterface, csrf *auth.CSRFSigner, cookieConfig auth.CookieConfig, ipConfig *pkghttp.IPConfig) *AuthHandler {
	return &AuthHandler{
		service:      service,
		csrf:         csrf,
		cookieConfig: cookieConfig,
		ipConfig:     ipConfig,
	}
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=80"`
	Password string `json:"password" validate:"required"`
}

// GetCSRFToken issues the anti-forgery token for the caller's client context,
// creating the context cookie on first contact.
func (h *AuthHandler) GetCSRFToken(w http.ResponseWriter, r *http.Request) {
	contextKey := auth.GetCSRFContextCookie(r)
	if contextKey == "" {
		var err error
		contextKey, err = newContextKey()
		if err != nil {
			pkghttp.WriteInternalError(w, "Internal server error")
			return
		}
		auth.SetCSRFContextCookie(w, contextKey, h.cookieConfig)
	}

	token, err := h.csrf.Issue(contextKey)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"csrf_token": token})
}

// Login handles user login. The anti-forgery check runs in middleware before
// this handler is reached.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Username = strings.TrimSpace(req.Username)

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	userAgent := r.Header.Get("User-Agent")
	currentSessionID := auth.GetSessionCookie(r)

	sessionID, err := h.service.Login(r.Context(), req.Username, req.Password, currentSessionID, ipAddress, userAgent)
	if err != nil {
		var rateLimited *models.RateLimitedError
		switch {
		case errors.As(err, &rateLimited):
			pkghttp.WriteTooManyRequests(w, int(rateLimited.RetryAfter.Seconds()), "Too many attempts, please try again later.")
		case errors.Is(err, models.ErrInvalidCredentials):
			pkghttp.WriteUnauthorized(w, "Invalid username or password")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	auth.SetSessionCookie(w, sessionID, h.cookieConfig)
	pkghttp.WriteMessage(w, http.StatusOK, "Login successful!")
}

// Logout clears the caller's session; safe to call without one.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sessionID := auth.GetSessionCookie(r)

	if err := h.service.Logout(r.Context(), sessionID); err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	auth.ClearSessionCookie(w, h.cookieConfig)
	pkghttp.WriteMessage(w, http.StatusOK, "Logout successful!")
}

// GetUser returns the username bound to the caller's session.
func (h *AuthHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	sessionID := auth.GetSessionCookie(r)

	user, err := h.service.CurrentUser(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			pkghttp.WriteNotFound(w, "User not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"username": user.Username})
}

// CheckLoggedIn reports whether the caller holds a live session.
func (h *AuthHandler) CheckLoggedIn(w http.ResponseWriter, r *http.Request) {
	sessionID := auth.GetSessionCookie(r)
	loggedIn := h.service.IsAuthenticated(r.Context(), sessionID)

	pkghttp.WriteJSON(w, http.StatusOK, map[string]bool{"logged_in": loggedIn})
}

// Protected requires a live session and otherwise returns 401.
func (h *AuthHandler) Protected(w http.ResponseWriter, r *http.Request) {
	sessionID := auth.GetSessionCookie(r)
	if !h.service.IsAuthenticated(r.Context(), sessionID) {
		pkghttp.WriteUnauthorized(w, "You must be logged in to view this page")
		return
	}

	pkghttp.WriteMessage(w, http.StatusOK, "Welcome to the protected page!")
}

func newContextKey() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
