package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/lmercier/portcullis/internal/models"
)

// MemoryAttemptStore keeps failure counters in process memory. Suitable for a
// single instance; counters live for the process lifetime.
type MemoryAttemptStore struct {
	mu      sync.Mutex
	records map[string]models.AttemptRecord
}

func NewMemoryAttemptStore() *MemoryAttemptStore {
	return &MemoryAttemptStore{
		records: make(map[string]models.AttemptRecord),
	}
}

func (s *MemoryAttemptStore) Lookup(ctx context.Context, username string) (*models.AttemptRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[username]
	if !ok {
		return nil, nil
	}

	out := rec
	if rec.FirstFailureAt != nil {
		ts := *rec.FirstFailureAt
		out.FirstFailureAt = &ts
	}
	return &out, nil
}

func (s *MemoryAttemptStore) RecordFailure(ctx context.Context, username string, at time.Time) (*models.AttemptRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[username]
	if !ok || rec.FailureCount == 0 {
		rec = models.AttemptRecord{
			Username:       username,
			FailureCount:   1,
			FirstFailureAt: &at,
		}
	} else {
		rec.FailureCount++
	}
	s.records[username] = rec

	out := rec
	ts := *rec.FirstFailureAt
	out.FirstFailureAt = &ts
	return &out, nil
}

func (s *MemoryAttemptStore) Reset(ctx context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[username] = models.AttemptRecord{Username: username}
	return nil
}
