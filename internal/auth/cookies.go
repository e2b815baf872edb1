package auth

import (
	"net/http"
)

const (
	// SessionCookieName carries the opaque session id.
	SessionCookieName = "portcullis_session"
	// CSRFContextCookieName carries the anonymous client context the
	// anti-forgery token is bound to. It stays stable across login so a token
	// fetched before authentication remains valid for logout.
	CSRFContextCookieName = "csrf_ctx"
)

// CookieConfig holds cookie attribute settings
type CookieConfig struct {
	Domain string // Empty string = current host only
	Secure bool   // HTTPS only
}

// SetSessionCookie sets the session id in an httpOnly, SameSite=Lax cookie.
// No MaxAge is set: the session is non-permanent and ends with the browser
// session.
func SetSessionCookie(w http.ResponseWriter, sessionID string, config CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		Domain:   config.Domain,
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie deletes the session cookie.
func ClearSessionCookie(w http.ResponseWriter, config CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   config.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// SetCSRFContextCookie sets the anti-forgery client context cookie.
func SetCSRFContextCookie(w http.ResponseWriter, contextKey string, config CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFContextCookieName,
		Value:    contextKey,
		Path:     "/",
		Domain:   config.Domain,
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// GetSessionCookie retrieves the session id from cookies, or "" when absent.
func GetSessionCookie(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// GetCSRFContextCookie retrieves the anti-forgery context, or "" when absent.
func GetCSRFContextCookie(r *http.Request) string {
	cookie, err := r.Cookie(CSRFContextCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
