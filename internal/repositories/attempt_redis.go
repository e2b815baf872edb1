package repositories

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lmercier/portcullis/internal/models"
)

const attemptKeyPrefix = "attempt:"

// RedisAttemptStore keeps failure counters in Redis so multiple instances
// share one authoritative counter per username. Mutations use a transactional
// pipeline; HSETNX pins the first-failure timestamp to the attempt that
// opened the window.
type RedisAttemptStore struct {
	client *redis.Client
}

func NewRedisAttemptStore(client *redis.Client) *RedisAttemptStore {
	return &RedisAttemptStore{client: client}
}

func (s *RedisAttemptStore) Lookup(ctx context.Context, username string) (*models.AttemptRecord, error) {
	fields, err := s.client.HGetAll(ctx, attemptKeyPrefix+username).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read attempt record: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	return parseAttemptFields(username, fields)
}

func (s *RedisAttemptStore) RecordFailure(ctx context.Context, username string, at time.Time) (*models.AttemptRecord, error) {
	key := attemptKeyPrefix + username

	pipe := s.client.TxPipeline()
	setNX := pipe.HSetNX(ctx, key, "first_failure", at.UnixNano())
	incr := pipe.HIncrBy(ctx, key, "failures", 1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to record attempt failure: %w", err)
	}

	first := at
	if !setNX.Val() {
		raw, err := s.client.HGet(ctx, key, "first_failure").Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read first failure time: %w", err)
		}
		nanos, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt first failure time %q: %w", raw, err)
		}
		first = time.Unix(0, nanos)
	}

	return &models.AttemptRecord{
		Username:       username,
		FailureCount:   int(incr.Val()),
		FirstFailureAt: &first,
	}, nil
}

func (s *RedisAttemptStore) Reset(ctx context.Context, username string) error {
	if err := s.client.Del(ctx, attemptKeyPrefix+username).Err(); err != nil {
		return fmt.Errorf("failed to reset attempt record: %w", err)
	}
	return nil
}

func parseAttemptFields(username string, fields map[string]string) (*models.AttemptRecord, error) {
	rec := &models.AttemptRecord{Username: username}

	if raw, ok := fields["failures"]; ok {
		count, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt failure count %q: %w", raw, err)
		}
		rec.FailureCount = count
	}

	if raw, ok := fields["first_failure"]; ok {
		nanos, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt first failure time %q: %w", raw, err)
		}
		first := time.Unix(0, nanos)
		rec.FirstFailureAt = &first
	}

	return rec, nil
}
