package auth_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/lmercier/portcullis/internal/auth"
	"github.com/lmercier/portcullis/internal/models"
	"github.com/lmercier/portcullis/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDirectory struct {
	users map[int64]*models.User
}

func (d *stubDirectory) GetByID(ctx context.Context, id int64) (*models.User, error) {
	u, ok := d.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return u, nil
}

func newTestSessionManager(users ...*models.User) *auth.SessionManager {
	dir := &stubDirectory{users: make(map[int64]*models.User)}
	for _, u := range users {
		dir.users[u.ID] = u
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return auth.NewSessionManager(repositories.NewMemorySessionStore(), dir, logger)
}

func TestSessionManager_EstablishAndResolve(t *testing.T) {
	m := newTestSessionManager(&models.User{ID: 1, Username: "alice"})
	ctx := context.Background()

	id, err := m.Establish(ctx, 1)
	require.NoError(t, err)
	// 32 random bytes, hex encoded
	assert.Len(t, id, 64)

	user, err := m.CurrentUser(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.True(t, m.IsAuthenticated(ctx, id))
}

func TestSessionManager_UniqueIDs(t *testing.T) {
	m := newTestSessionManager(&models.User{ID: 1, Username: "alice"})
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id, err := m.Establish(ctx, 1)
		require.NoError(t, err)
		assert.False(t, seen[id], "session ids must not repeat")
		seen[id] = true
	}
}

func TestSessionManager_UnknownSession(t *testing.T) {
	m := newTestSessionManager()
	ctx := context.Background()

	_, err := m.CurrentUser(ctx, "no-such-session")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
	assert.False(t, m.IsAuthenticated(ctx, "no-such-session"))
	assert.False(t, m.IsAuthenticated(ctx, ""))
}

func TestSessionManager_DeletedUser(t *testing.T) {
	dir := &stubDirectory{users: map[int64]*models.User{1: {ID: 1, Username: "alice"}}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := auth.NewSessionManager(repositories.NewMemorySessionStore(), dir, logger)
	ctx := context.Background()

	id, err := m.Establish(ctx, 1)
	require.NoError(t, err)

	delete(dir.users, 1)

	_, err = m.CurrentUser(ctx, id)
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}

func TestSessionManager_Clear(t *testing.T) {
	m := newTestSessionManager(&models.User{ID: 1, Username: "alice"})
	ctx := context.Background()

	id, err := m.Establish(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, m.Clear(ctx, id))
	assert.False(t, m.IsAuthenticated(ctx, id))

	// Idempotent, including the no-session case
	require.NoError(t, m.Clear(ctx, id))
	require.NoError(t, m.Clear(ctx, ""))
}
