package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/lmercier/portcullis/internal/models"
)

// Lockout policy. Fixed by design, not configuration.
const (
	MaxFailedAttempts = 5
	LockoutWindow     = 900 * time.Second
)

// AttemptStore defines the persistence operations for per-username failure
// counters. Implementations must make each mutation atomic with respect to
// concurrent calls for the same username.
type AttemptStore interface {
	// Lookup returns the record for a username, or nil when none exists.
	Lookup(ctx context.Context, username string) (*models.AttemptRecord, error)
	// RecordFailure creates a record with count 1 and firstFailureAt=at, or
	// increments an existing record's count leaving firstFailureAt untouched.
	RecordFailure(ctx context.Context, username string, at time.Time) (*models.AttemptRecord, error)
	// Reset clears the record back to count 0, no first-failure timestamp.
	Reset(ctx context.Context, username string) error
}

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// AttemptTracker decides whether a login attempt for a username may proceed
// and records attempt outcomes.
type AttemptTracker struct {
	store  AttemptStore
	logger *slog.Logger
}

func NewAttemptTracker(store AttemptStore, logger *slog.Logger) *AttemptTracker {
	return &AttemptTracker{
		store:  store,
		logger: logger,
	}
}

// CheckAdmission blocks a username iff it has reached MaxFailedAttempts
// failures and the first of those failures is less than LockoutWindow old.
// An elapsed window admits the attempt without resetting the stale counter;
// only a successful login resets it.
//
// Store errors fail open: an unavailable counter store must not lock
// legitimate users out.
func (t *AttemptTracker) CheckAdmission(ctx context.Context, username string) Decision {
	rec, err := t.store.Lookup(ctx, username)
	if err != nil {
		t.logger.Error("failed to look up attempt record", slog.Any("error", err))
		return Decision{Allowed: true}
	}

	if rec == nil || rec.FailureCount < MaxFailedAttempts || rec.FirstFailureAt == nil {
		return Decision{Allowed: true}
	}

	elapsed := time.Since(*rec.FirstFailureAt)
	if elapsed >= LockoutWindow {
		return Decision{Allowed: true}
	}

	retryAfter := LockoutWindow - elapsed
	t.logger.Warn("login attempt blocked",
		slog.Int("failure_count", rec.FailureCount),
		slog.Duration("retry_after", retryAfter))

	return Decision{Allowed: false, RetryAfter: retryAfter}
}

// RecordFailure notes a failed login for the username, starting a new window
// if none is open.
func (t *AttemptTracker) RecordFailure(ctx context.Context, username string) error {
	_, err := t.store.RecordFailure(ctx, username, time.Now())
	return err
}

// RecordSuccess resets the username's counter after a successful login.
func (t *AttemptTracker) RecordSuccess(ctx context.Context, username string) error {
	return t.store.Reset(ctx, username)
}
