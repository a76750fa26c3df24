package repository

import (
	"context"
	"time"

	"github.com/lumenweb/contactsync/internal/domain"

	"github.com/google/uuid"
)

// SubmissionRepository defines the interface for submission operations
type SubmissionRepository interface {
	Create(ctx context.Context, submission domain.Submission) (domain.Submission, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Submission, error)
	MarkSynced(ctx context.Context, id uuid.UUID, remoteID string, syncedAt time.Time) error
	MarkSyncFailed(ctx context.Context, id uuid.UUID, attemptedAt time.Time) error
	List(ctx context.Context, status *domain.SyncStatus, limit int, offset int) ([]domain.Submission, error)
	CountByStatus(ctx context.Context, status domain.SyncStatus) (int64, error)
}

// SyncAttemptRepository defines the interface for the append-only audit log
type SyncAttemptRepository interface {
	Record(ctx context.Context, attempt domain.SyncAttempt) error
	ListBySubmission(ctx context.Context, submissionID uuid.UUID, limit int, offset int) ([]domain.SyncAttempt, error)
}

// StatsRepository defines the interface for daily aggregate counters.
// Submissions/successes/failures count local intake outcomes; synced counts
// successful CRM syncs.
type StatsRepository interface {
	RecordSubmission(ctx context.Context, formName string, day time.Time, accepted bool) error
	RecordSynced(ctx context.Context, formName string, day time.Time) error
	GetRange(ctx context.Context, formName string, from time.Time, to time.Time) ([]domain.DailyFormStats, error)
}
