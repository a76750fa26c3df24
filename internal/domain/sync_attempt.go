package domain

import (
	"time"

	"github.com/google/uuid"
)

// SyncOperation identifies which remote call a sync attempt performed.
type SyncOperation string

const (
	SyncOperationCreate  SyncOperation = "create"
	SyncOperationUpdate  SyncOperation = "update"
	SyncOperationListAdd SyncOperation = "list_add"
)

// SyncAttempt is an append-only audit record of one terminal sync outcome
// for a submission. Rows are never mutated or deleted by this service.
type SyncAttempt struct {
	ID            uuid.UUID     `json:"id"`
	SubmissionID  uuid.UUID     `json:"submission_id"`
	Operation     SyncOperation `json:"operation"`
	Success       bool          `json:"success"`
	Response      string        `json:"response,omitempty"`
	ErrorMessage  string        `json:"error_message,omitempty"`
	AttemptNumber int           `json:"attempt_number"`
	CreatedAt     time.Time     `json:"created_at"`
}
