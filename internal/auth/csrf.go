package auth

import (
	"crypto/subtle"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lmercier/portcullis/internal/models"
)

// CSRFSigner issues and validates anti-forgery tokens. A token is an HS256
// JWS over the client context key, so issuance is deterministic per context
// and validation needs no server-side token store.
type CSRFSigner struct {
	secret []byte
}

func NewCSRFSigner(secret string) *CSRFSigner {
	return &CSRFSigner{secret: []byte(secret)}
}

// Issue returns the anti-forgery token for a client context. Calling it twice
// with the same context yields the same token.
func (s *CSRFSigner) Issue(contextKey string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"ctx": contextKey,
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign csrf token: %w", err)
	}

	return signed, nil
}

// Validate checks a presented token against the one Issue would produce for
// the context. An empty presented token reports ErrCSRFMissing; any mismatch,
// including an empty context, reports ErrCSRFInvalid.
func (s *CSRFSigner) Validate(contextKey, presented string) error {
	if presented == "" {
		return models.ErrCSRFMissing
	}

	if contextKey == "" {
		return models.ErrCSRFInvalid
	}

	expected, err := s.Issue(contextKey)
	if err != nil {
		return fmt.Errorf("failed to compute expected csrf token: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) != 1 {
		return models.ErrCSRFInvalid
	}

	return nil
}
