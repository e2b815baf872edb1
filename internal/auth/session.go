package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lmercier/portcullis/internal/models"
)

const sessionIDBytes = 32

// SessionStore defines the persistence operations for server-side sessions.
// Implementations must make Save and Delete atomic per session id; Delete is
// idempotent.
type SessionStore interface {
	Save(ctx context.Context, session *models.Session) error
	Get(ctx context.Context, id string) (*models.Session, error)
	Delete(ctx context.Context, id string) error
}

// UserDirectory resolves a session's bound user id to a user record.
type UserDirectory interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

// SessionManager owns the session lifecycle: Anonymous -> Authenticated on
// establish, back to Anonymous on clear.
type SessionManager struct {
	store  SessionStore
	users  UserDirectory
	logger *slog.Logger
}

func NewSessionManager(store SessionStore, users UserDirectory, logger *slog.Logger) *SessionManager {
	return &SessionManager{
		store:  store,
		users:  users,
		logger: logger,
	}
}

// Establish creates a new non-permanent session bound to userID and returns
// its opaque id. Called only after successful credential verification.
func (m *SessionManager) Establish(ctx context.Context, userID int64) (string, error) {
	id, err := generateSessionID()
	if err != nil {
		return "", err
	}

	session := &models.Session{
		ID:        id,
		UserID:    userID,
		CreatedAt: time.Now(),
		Permanent: false,
	}

	if err := m.store.Save(ctx, session); err != nil {
		return "", fmt.Errorf("failed to save session: %w", err)
	}

	m.logger.Info("session established", slog.Int64("user_id", userID))
	return id, nil
}

// CurrentUser resolves a session id to its user record. Reports
// ErrSessionNotFound when the session is absent or its user no longer exists.
func (m *SessionManager) CurrentUser(ctx context.Context, sessionID string) (*models.User, error) {
	if sessionID == "" {
		return nil, models.ErrSessionNotFound
	}

	session, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	user, err := m.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrSessionNotFound
		}
		return nil, err
	}

	return user, nil
}

// IsAuthenticated reports whether a session exists for the id, independent of
// whether the bound user still resolves.
func (m *SessionManager) IsAuthenticated(ctx context.Context, sessionID string) bool {
	if sessionID == "" {
		return false
	}

	_, err := m.store.Get(ctx, sessionID)
	return err == nil
}

// Clear destroys the session. Clearing an already-absent session is not an
// error.
func (m *SessionManager) Clear(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return m.store.Delete(ctx, sessionID)
}

func generateSessionID() (string, error) {
	buf := make([]byte, sessionIDBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
