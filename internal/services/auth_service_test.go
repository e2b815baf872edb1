package services_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/lmercier/portcullis/internal/auth"
	"github.com/lmercier/portcullis/internal/models"
	"github.com/lmercier/portcullis/internal/services"
	pkglogger "github.com/lmercier/portcullis/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUserStore struct {
	users map[string]*models.User
}

func newFakeUserStore(users ...*models.User) *fakeUserStore {
	s := &fakeUserStore{users: make(map[string]*models.User)}
	for _, u := range users {
		s.users[u.Username] = u
	}
	return s
}

func (s *fakeUserStore) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	u, ok := s.users[username]
	if !ok {
		return nil, models.ErrNotFound
	}
	return u, nil
}

func (s *fakeUserStore) GetByID(ctx context.Context, id int64) (*models.User, error) {
	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *fakeUserStore) Count(ctx context.Context) (int64, error) {
	return int64(len(s.users)), nil
}

func (s *fakeUserStore) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if _, ok := s.users[user.Username]; ok {
		return nil, models.ErrConflict
	}
	s.users[user.Username] = user
	return user, nil
}

// fakeVerifier accepts the password equal to the stored hash, tracking calls.
type fakeVerifier struct {
	calls int
}

func (v *fakeVerifier) Compare(hashedPassword, password string) error {
	v.calls++
	if hashedPassword != password {
		return errors.New("mismatch")
	}
	return nil
}

type fakeSessionStore struct {
	sessions map[string]*models.Session
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[string]*models.Session)}
}

func (s *fakeSessionStore) Save(ctx context.Context, session *models.Session) error {
	s.sessions[session.ID] = session
	return nil
}

func (s *fakeSessionStore) Get(ctx context.Context, id string) (*models.Session, error) {
	session, ok := s.sessions[id]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	return session, nil
}

func (s *fakeSessionStore) Delete(ctx context.Context, id string) error {
	delete(s.sessions, id)
	return nil
}

type serviceFixture struct {
	service      *services.AuthService
	attemptStore *fakeAttemptStore
	sessionStore *fakeSessionStore
	verifier     *fakeVerifier
}

func newServiceFixture(users ...*models.User) *serviceFixture {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	userStore := newFakeUserStore(users...)
	attemptStore := newFakeAttemptStore()
	sessionStore := newFakeSessionStore()
	verifier := &fakeVerifier{}

	tracker := services.NewAttemptTracker(attemptStore, logger)
	sessions := auth.NewSessionManager(sessionStore, userStore, logger)
	timing := auth.NewTimingDelay(auth.TimingConfig{})

	service := services.NewAuthService(
		userStore,
		tracker,
		sessions,
		verifier,
		timing,
		logger,
		pkglogger.NewAuditLogger(logger),
	)

	return &serviceFixture{
		service:      service,
		attemptStore: attemptStore,
		sessionStore: sessionStore,
		verifier:     verifier,
	}
}

func TestLogin_EstablishesSession(t *testing.T) {
	f := newServiceFixture(&models.User{ID: 1, Username: "alice", PasswordHash: "correct horse"})
	ctx := context.Background()

	sessionID, err := f.service.Login(ctx, "alice", "correct horse", "", "203.0.113.9", "test-agent")
	require.NoError(t, err)
	require.NotEmpty(t, sessionID)

	user, err := f.service.CurrentUser(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
}

func TestLogin_TrimsUsername(t *testing.T) {
	f := newServiceFixture(&models.User{ID: 1, Username: "alice", PasswordHash: "correct horse"})

	sessionID, err := f.service.Login(context.Background(), "  alice  ", "correct horse", "", "", "")
	require.NoError(t, err)
	assert.NotEmpty(t, sessionID)
}

func TestLogin_UnknownUsername(t *testing.T) {
	f := newServiceFixture()
	ctx := context.Background()

	_, err := f.service.Login(ctx, "nobody", "anything", "", "", "")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)

	// An unknown username still counts against the submitted name
	rec, lookupErr := f.attemptStore.Lookup(ctx, "nobody")
	require.NoError(t, lookupErr)
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.FailureCount)
}

func TestLogin_WrongPassword(t *testing.T) {
	f := newServiceFixture(&models.User{ID: 1, Username: "alice", PasswordHash: "correct horse"})
	ctx := context.Background()

	_, err := f.service.Login(ctx, "alice", "wrong", "", "", "")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)

	rec, lookupErr := f.attemptStore.Lookup(ctx, "alice")
	require.NoError(t, lookupErr)
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.FailureCount)
}

func TestLogin_EmptyUsername(t *testing.T) {
	f := newServiceFixture()

	_, err := f.service.Login(context.Background(), "   ", "anything", "", "", "")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestLogin_BlockedAfterThreshold(t *testing.T) {
	f := newServiceFixture(&models.User{ID: 1, Username: "alice", PasswordHash: "correct horse"})
	ctx := context.Background()

	for i := 0; i < services.MaxFailedAttempts; i++ {
		_, err := f.service.Login(ctx, "alice", "wrong", "", "", "")
		assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	}

	verifierCalls := f.verifier.calls

	// Even the correct password is rejected while the window is open
	_, err := f.service.Login(ctx, "alice", "correct horse", "", "", "")
	var rateLimited *models.RateLimitedError
	require.ErrorAs(t, err, &rateLimited)
	assert.Greater(t, rateLimited.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, rateLimited.RetryAfter, services.LockoutWindow)

	// Admission runs before credential verification
	assert.Equal(t, verifierCalls, f.verifier.calls, "verifier must not run for blocked attempts")
}

func TestLogin_SucceedsAfterWindowElapsed(t *testing.T) {
	f := newServiceFixture(&models.User{ID: 1, Username: "alice", PasswordHash: "correct horse"})
	ctx := context.Background()

	f.attemptStore.seed("alice", services.MaxFailedAttempts, time.Now().Add(-(services.LockoutWindow + time.Second)))

	sessionID, err := f.service.Login(ctx, "alice", "correct horse", "", "", "")
	require.NoError(t, err)
	assert.NotEmpty(t, sessionID)

	// Success resets the counter
	rec, lookupErr := f.attemptStore.Lookup(ctx, "alice")
	require.NoError(t, lookupErr)
	require.NotNil(t, rec)
	assert.Zero(t, rec.FailureCount)
}

func TestLogin_ReplacesExistingSession(t *testing.T) {
	f := newServiceFixture(&models.User{ID: 1, Username: "alice", PasswordHash: "correct horse"})
	ctx := context.Background()

	first, err := f.service.Login(ctx, "alice", "correct horse", "", "", "")
	require.NoError(t, err)

	second, err := f.service.Login(ctx, "alice", "correct horse", first, "", "")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	assert.False(t, f.service.IsAuthenticated(ctx, first), "old session should be cleared")
	assert.True(t, f.service.IsAuthenticated(ctx, second))
}

func TestLogout_Idempotent(t *testing.T) {
	f := newServiceFixture(&models.User{ID: 1, Username: "alice", PasswordHash: "correct horse"})
	ctx := context.Background()

	sessionID, err := f.service.Login(ctx, "alice", "correct horse", "", "", "")
	require.NoError(t, err)

	require.NoError(t, f.service.Logout(ctx, sessionID))
	assert.False(t, f.service.IsAuthenticated(ctx, sessionID))

	// A second logout, or one with no session at all, is not an error
	require.NoError(t, f.service.Logout(ctx, sessionID))
	require.NoError(t, f.service.Logout(ctx, ""))
}

func TestCurrentUser_UnknownSession(t *testing.T) {
	f := newServiceFixture()

	_, err := f.service.CurrentUser(context.Background(), "no-such-session")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}
