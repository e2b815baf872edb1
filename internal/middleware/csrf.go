package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/lmercier/portcullis/internal/auth"
	"github.com/lmercier/portcullis/internal/models"
	pkghttp "github.com/lmercier/portcullis/pkg/http"
)

// CSRFProtection validates anti-forgery tokens on state-changing requests.
// The token arrives in an X-CSRF-Token header (X-CSRFToken is accepted as a
// fallback for older clients) and is checked against the client context
// cookie it was issued for.
func CSRFProtection(signer *auth.CSRFSigner, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isStateChangingMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			token := r.Header.Get("X-CSRF-Token")
			if token == "" {
				token = r.Header.Get("X-CSRFToken")
			}

			contextKey := auth.GetCSRFContextCookie(r)

			if err := signer.Validate(contextKey, token); err != nil {
				if errors.Is(err, models.ErrCSRFMissing) {
					logger.Warn("CSRF token missing in request",
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path))
					pkghttp.WriteCSRFMissing(w, "CSRF token missing")
					return
				}
				logger.Warn("CSRF token validation failed",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path))
				pkghttp.WriteCSRFInvalid(w, "CSRF token invalid")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// isStateChangingMethod checks if the HTTP method modifies state
func isStateChangingMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
		return true
	default:
		return false
	}
}
