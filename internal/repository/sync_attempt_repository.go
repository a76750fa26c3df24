package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/lumenweb/contactsync/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type syncAttemptRepository struct {
	pool *pgxpool.Pool
}

// NewSyncAttemptRepository wires a repository backed by pgxpool.
func NewSyncAttemptRepository(pool *pgxpool.Pool) SyncAttemptRepository {
	return &syncAttemptRepository{pool: pool}
}

func (r *syncAttemptRepository) Record(ctx context.Context, attempt domain.SyncAttempt) error {
	if r.pool == nil {
		return fmt.Errorf("sync attempt repository not initialized")
	}

	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}

	_, err := r.pool.Exec(
		ctx,
		`INSERT INTO sync_attempts (id, submission_id, operation, success, response, error_message, attempt_number, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		attempt.ID,
		attempt.SubmissionID,
		string(attempt.Operation),
		attempt.Success,
		attempt.Response,
		attempt.ErrorMessage,
		attempt.AttemptNumber,
		attempt.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record sync attempt: %w", err)
	}

	return nil
}

func (r *syncAttemptRepository) ListBySubmission(ctx context.Context, submissionID uuid.UUID, limit int, offset int) ([]domain.SyncAttempt, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("sync attempt repository not initialized")
	}

	if limit <= 0 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT id, submission_id, operation, success, response, error_message, attempt_number, created_at
		 FROM sync_attempts
		 WHERE submission_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		submissionID,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync attempts: %w", err)
	}
	defer rows.Close()

	attempts := []domain.SyncAttempt{}
	for rows.Next() {
		var (
			attempt   domain.SyncAttempt
			operation string
			createdAt pgtype.Timestamptz
		)
		if scanErr := rows.Scan(
			&attempt.ID,
			&attempt.SubmissionID,
			&operation,
			&attempt.Success,
			&attempt.Response,
			&attempt.ErrorMessage,
			&attempt.AttemptNumber,
			&createdAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan sync attempt: %w", scanErr)
		}

		attempt.Operation = domain.SyncOperation(operation)
		if createdAt.Valid {
			attempt.CreatedAt = createdAt.Time
		}

		attempts = append(attempts, attempt)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate sync attempts: %w", rowsErr)
	}

	return attempts, nil
}
