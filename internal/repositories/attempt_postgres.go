package repositories

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lmercier/portcullis/internal/database"
	"github.com/lmercier/portcullis/internal/models"
)

// PostgresAttemptStore persists failure counters in the login_attempts table.
// The upsert makes create-or-increment a single atomic statement.
type PostgresAttemptStore struct {
	db *database.DB
}

func NewPostgresAttemptStore(db *database.DB) *PostgresAttemptStore {
	return &PostgresAttemptStore{db: db}
}

func (s *PostgresAttemptStore) Lookup(ctx context.Context, username string) (*models.AttemptRecord, error) {
	query := `
		SELECT failure_count, first_failure_at FROM login_attempts
		WHERE username = $1
	`

	rec := models.AttemptRecord{Username: username}
	err := s.db.Pool.QueryRow(ctx, query, username).Scan(&rec.FailureCount, &rec.FirstFailureAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &rec, nil
}

func (s *PostgresAttemptStore) RecordFailure(ctx context.Context, username string, at time.Time) (*models.AttemptRecord, error) {
	query := `
		INSERT INTO login_attempts (username, failure_count, first_failure_at)
		VALUES ($1, 1, $2)
		ON CONFLICT (username) DO UPDATE SET
			failure_count = login_attempts.failure_count + 1,
			first_failure_at = COALESCE(login_attempts.first_failure_at, EXCLUDED.first_failure_at)
		RETURNING failure_count, first_failure_at
	`

	rec := models.AttemptRecord{Username: username}
	err := s.db.Pool.QueryRow(ctx, query, username, at).Scan(&rec.FailureCount, &rec.FirstFailureAt)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &rec, nil
}

func (s *PostgresAttemptStore) Reset(ctx context.Context, username string) error {
	query := `
		UPDATE login_attempts SET failure_count = 0, first_failure_at = NULL
		WHERE username = $1
	`

	_, err := s.db.Pool.Exec(ctx, query, username)
	return database.MapPostgresError(err)
}
