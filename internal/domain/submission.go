package domain

import (
	"time"

	"github.com/google/uuid"
)

// SyncStatus tracks where a submission sits in the CRM sync lifecycle.
type SyncStatus string

const (
	SyncStatusUnsynced SyncStatus = "unsynced"
	SyncStatusSynced   SyncStatus = "synced"
	SyncStatusFailed   SyncStatus = "sync_failed"
)

// CanRetrySync reports whether another sync attempt is allowed from this state.
// Synced is terminal; a manual reset is outside this service.
func (s SyncStatus) CanRetrySync() bool {
	return s == SyncStatusUnsynced || s == SyncStatusFailed
}

// Submission is a locally owned contact-form submission. It is created once
// by intake and mutated only by the sync orchestrator, which sets the remote
// contact id and the lifecycle state.
type Submission struct {
	ID         uuid.UUID  `json:"id"`
	FormName   string     `json:"form_name"`
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	Company    string     `json:"company,omitempty"`
	UseCase    string     `json:"use_case,omitempty"`
	Message    string     `json:"message"`
	SyncStatus SyncStatus `json:"sync_status"`
	RemoteID   *string    `json:"remote_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
}
