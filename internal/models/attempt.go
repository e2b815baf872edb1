package models

import "time"

// AttemptRecord tracks consecutive failed logins for a single username.
// FirstFailureAt marks the start of the current lockout window, not the most
// recent failure. Invariant: FirstFailureAt is non-nil iff FailureCount > 0.
type AttemptRecord struct {
	Username       string
	FailureCount   int
	FirstFailureAt *time.Time
}
