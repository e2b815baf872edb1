package repositories

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryAttemptStore_FirstFailureAnchors(t *testing.T) {
	store := NewMemoryAttemptStore()
	ctx := context.Background()

	t0 := time.Now().Add(-time.Minute)
	rec, err := store.RecordFailure(ctx, "alice", t0)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.FailureCount)
	require.NotNil(t, rec.FirstFailureAt)
	assert.True(t, rec.FirstFailureAt.Equal(t0))

	// Subsequent failures pass fresh timestamps that must be ignored
	rec, err = store.RecordFailure(ctx, "alice", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, rec.FailureCount)
	assert.True(t, rec.FirstFailureAt.Equal(t0))
}

func TestMemoryAttemptStore_ResetThenFreshWindow(t *testing.T) {
	store := NewMemoryAttemptStore()
	ctx := context.Background()

	_, err := store.RecordFailure(ctx, "alice", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.NoError(t, store.Reset(ctx, "alice"))

	rec, err := store.Lookup(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Zero(t, rec.FailureCount)
	assert.Nil(t, rec.FirstFailureAt)

	// A failure after reset starts a new window at the new timestamp
	t1 := time.Now()
	rec, err = store.RecordFailure(ctx, "alice", t1)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.FailureCount)
	assert.True(t, rec.FirstFailureAt.Equal(t1))
}

func TestMemoryAttemptStore_LookupUnknown(t *testing.T) {
	store := NewMemoryAttemptStore()

	rec, err := store.Lookup(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestMemoryAttemptStore_LookupReturnsCopy(t *testing.T) {
	store := NewMemoryAttemptStore()
	ctx := context.Background()

	_, err := store.RecordFailure(ctx, "alice", time.Now())
	require.NoError(t, err)

	rec, err := store.Lookup(ctx, "alice")
	require.NoError(t, err)
	rec.FailureCount = 99

	fresh, err := store.Lookup(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, fresh.FailureCount, "callers must not mutate stored state")
}

func TestMemoryAttemptStore_ConcurrentFailures(t *testing.T) {
	store := NewMemoryAttemptStore()
	ctx := context.Background()

	const goroutines = 20
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			_, _ = store.RecordFailure(ctx, "alice", time.Now())
		}()
	}
	wg.Wait()

	rec, err := store.Lookup(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, goroutines, rec.FailureCount, "no increments may be lost")
}
