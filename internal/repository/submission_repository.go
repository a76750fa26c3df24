package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lumenweb/contactsync/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrSubmissionNotFound is returned when a submission id does not exist.
var ErrSubmissionNotFound = errors.New("submission not found")

type submissionRepository struct {
	pool *pgxpool.Pool
}

// NewSubmissionRepository wires a repository backed by pgxpool.
func NewSubmissionRepository(pool *pgxpool.Pool) SubmissionRepository {
	return &submissionRepository{pool: pool}
}

func (r *submissionRepository) Create(ctx context.Context, submission domain.Submission) (domain.Submission, error) {
	if r.pool == nil {
		return domain.Submission{}, fmt.Errorf("submission repository not initialized")
	}

	if submission.ID == uuid.Nil {
		submission.ID = uuid.New()
	}
	if submission.SyncStatus == "" {
		submission.SyncStatus = domain.SyncStatusUnsynced
	}
	if submission.CreatedAt.IsZero() {
		submission.CreatedAt = time.Now().UTC()
	}

	_, err := r.pool.Exec(
		ctx,
		`INSERT INTO submissions (id, form_name, name, email, company, use_case, message, sync_status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		submission.ID,
		submission.FormName,
		submission.Name,
		submission.Email,
		submission.Company,
		submission.UseCase,
		submission.Message,
		string(submission.SyncStatus),
		submission.CreatedAt,
	)
	if err != nil {
		return domain.Submission{}, fmt.Errorf("failed to create submission: %w", err)
	}

	return submission, nil
}

func (r *submissionRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Submission, error) {
	if r.pool == nil {
		return domain.Submission{}, fmt.Errorf("submission repository not initialized")
	}

	row := r.pool.QueryRow(
		ctx,
		`SELECT id, form_name, name, email, company, use_case, message, sync_status, remote_id, created_at, last_sync_at
		 FROM submissions
		 WHERE id = $1`,
		id,
	)

	submission, err := scanSubmission(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Submission{}, ErrSubmissionNotFound
		}
		return domain.Submission{}, fmt.Errorf("failed to get submission: %w", err)
	}

	return submission, nil
}

func (r *submissionRepository) MarkSynced(ctx context.Context, id uuid.UUID, remoteID string, syncedAt time.Time) error {
	if r.pool == nil {
		return fmt.Errorf("submission repository not initialized")
	}

	tag, err := r.pool.Exec(
		ctx,
		`UPDATE submissions
		 SET sync_status = $2, remote_id = $3, last_sync_at = $4
		 WHERE id = $1`,
		id,
		string(domain.SyncStatusSynced),
		remoteID,
		syncedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to mark submission synced: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSubmissionNotFound
	}

	return nil
}

func (r *submissionRepository) MarkSyncFailed(ctx context.Context, id uuid.UUID, attemptedAt time.Time) error {
	if r.pool == nil {
		return fmt.Errorf("submission repository not initialized")
	}

	tag, err := r.pool.Exec(
		ctx,
		`UPDATE submissions
		 SET sync_status = $2, last_sync_at = $3
		 WHERE id = $1`,
		id,
		string(domain.SyncStatusFailed),
		attemptedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to mark submission sync failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSubmissionNotFound
	}

	return nil
}

func (r *submissionRepository) List(ctx context.Context, status *domain.SyncStatus, limit int, offset int) ([]domain.Submission, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("submission repository not initialized")
	}

	if limit <= 0 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT id, form_name, name, email, company, use_case, message, sync_status, remote_id, created_at, last_sync_at
		 FROM submissions`
	args := []any{}
	if status != nil {
		query += ` WHERE sync_status = $1`
		args = append(args, string(*status))
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer rows.Close()

	submissions := []domain.Submission{}
	for rows.Next() {
		submission, scanErr := scanSubmission(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", scanErr)
		}
		submissions = append(submissions, submission)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate submissions: %w", rowsErr)
	}

	return submissions, nil
}

func (r *submissionRepository) CountByStatus(ctx context.Context, status domain.SyncStatus) (int64, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("submission repository not initialized")
	}

	var count int64
	err := r.pool.QueryRow(
		ctx,
		`SELECT COUNT(*) FROM submissions WHERE sync_status = $1`,
		string(status),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count submissions: %w", err)
	}

	return count, nil
}

func scanSubmission(row pgx.Row) (domain.Submission, error) {
	var (
		submission domain.Submission
		status     string
		remoteID   pgtype.Text
		lastSyncAt pgtype.Timestamptz
	)
	if err := row.Scan(
		&submission.ID,
		&submission.FormName,
		&submission.Name,
		&submission.Email,
		&submission.Company,
		&submission.UseCase,
		&submission.Message,
		&status,
		&remoteID,
		&submission.CreatedAt,
		&lastSyncAt,
	); err != nil {
		return domain.Submission{}, err
	}

	submission.SyncStatus = domain.SyncStatus(status)
	if remoteID.Valid {
		value := remoteID.String
		submission.RemoteID = &value
	}
	if lastSyncAt.Valid {
		value := lastSyncAt.Time
		submission.LastSyncAt = &value
	}

	return submission, nil
}
