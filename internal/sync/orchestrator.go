package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lumenweb/contactsync/internal/domain"
	"github.com/lumenweb/contactsync/internal/hubspot"
	"github.com/lumenweb/contactsync/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Directory is the slice of the CRM client the orchestrator needs.
type Directory interface {
	SyncContact(ctx context.Context, contact domain.Contact) hubspot.Result
	LogActivity(ctx context.Context, email string, note string) hubspot.Result
}

// Orchestrator drives submissions through the sync lifecycle:
// Unsynced -> Synced | SyncFailed. Work is consumed from a bounded queue by
// a fixed worker pool so the intake path never waits on the CRM.
type Orchestrator struct {
	directory   Directory
	submissions repository.SubmissionRepository
	attempts    repository.SyncAttemptRepository
	stats       repository.StatsRepository
	logger      zerolog.Logger

	queue   chan uuid.UUID
	workers int
	now     func() time.Time

	mu         sync.Mutex
	emailLocks map[string]*emailLock

	wg       sync.WaitGroup
	detached sync.WaitGroup
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithQueueSize sets the bounded queue capacity.
func WithQueueSize(size int) Option {
	return func(o *Orchestrator) {
		if size > 0 {
			o.queue = make(chan uuid.UUID, size)
		}
	}
}

// WithWorkers sets the worker pool size.
func WithWorkers(workers int) Option {
	return func(o *Orchestrator) {
		if workers > 0 {
			o.workers = workers
		}
	}
}

// WithClock replaces the clock, used by tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// NewOrchestrator creates a sync orchestrator.
func NewOrchestrator(
	directory Directory,
	submissions repository.SubmissionRepository,
	attempts repository.SyncAttemptRepository,
	stats repository.StatsRepository,
	logger zerolog.Logger,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		directory:   directory,
		submissions: submissions,
		attempts:    attempts,
		stats:       stats,
		logger:      logger,
		queue:       make(chan uuid.UUID, 256),
		workers:     4,
		now:         time.Now,
		emailLocks:  map[string]*emailLock{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start launches the worker pool. Workers drain the queue until ctx is
// cancelled.
func (o *Orchestrator) Start(ctx context.Context) {
	for i := 0; i < o.workers; i++ {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case id := <-o.queue:
					if _, err := o.Process(ctx, id); err != nil {
						o.logger.Error().Err(err).Stringer("submission_id", id).Msg("sync processing failed")
					}
				}
			}
		}()
	}
}

// Stop waits for in-flight work to finish.
func (o *Orchestrator) Stop() {
	o.wg.Wait()
	o.detached.Wait()
}

// Enqueue schedules a submission for sync without blocking the caller. If the
// queue is full the work runs on a detached goroutine instead; intake never
// waits on sync either way.
func (o *Orchestrator) Enqueue(id uuid.UUID) {
	select {
	case o.queue <- id:
	default:
		o.logger.Warn().Stringer("submission_id", id).Msg("sync queue full, running detached")
		o.detached.Add(1)
		go func() {
			defer o.detached.Done()
			if _, err := o.Process(context.Background(), id); err != nil {
				o.logger.Error().Err(err).Stringer("submission_id", id).Msg("detached sync failed")
			}
		}()
	}
}

// Process runs one full sync cycle for the submission: upsert the remote
// contact, persist the outcome, append exactly one audit row, and update the
// daily counters. The returned error covers local persistence problems only;
// remote failures are reflected in the Result and the audit log.
func (o *Orchestrator) Process(ctx context.Context, id uuid.UUID) (hubspot.Result, error) {
	submission, err := o.submissions.GetByID(ctx, id)
	if err != nil {
		return hubspot.Result{}, fmt.Errorf("failed to load submission: %w", err)
	}

	if !submission.SyncStatus.CanRetrySync() {
		o.logger.Debug().
			Stringer("submission_id", id).
			Str("status", string(submission.SyncStatus)).
			Msg("submission already synced, skipping")
		return hubspot.Ok(deref(submission.RemoteID)), nil
	}

	contact := contactFromSubmission(submission)

	// Serialize syncs per email so two submissions for the same address
	// cannot race between lookup and create.
	unlock := o.lockEmail(submission.Email)
	result := o.directory.SyncContact(ctx, contact)
	unlock()

	attemptedAt := o.now().UTC()
	ordinal, err := o.nextAttemptOrdinal(ctx, id)
	if err != nil {
		o.logger.Warn().Err(err).Stringer("submission_id", id).Msg("failed to determine attempt ordinal")
		ordinal = 1
	}

	operation := result.Operation
	if operation == "" {
		operation = domain.SyncOperationCreate
	}

	attempt := domain.SyncAttempt{
		SubmissionID:  id,
		Operation:     operation,
		Success:       result.OK,
		AttemptNumber: ordinal,
		CreatedAt:     attemptedAt,
	}

	if result.OK {
		attempt.Response = result.RemoteID
	} else {
		attempt.ErrorMessage = result.Err
	}

	// Append the audit row before touching submission state, so a failed
	// local write cannot lose the record of a terminal remote outcome.
	if err := o.attempts.Record(ctx, attempt); err != nil {
		return result, fmt.Errorf("failed to record sync attempt: %w", err)
	}

	if result.OK {
		if err := o.submissions.MarkSynced(ctx, id, result.RemoteID, attemptedAt); err != nil {
			return result, fmt.Errorf("failed to persist sync success: %w", err)
		}
	} else {
		if err := o.submissions.MarkSyncFailed(ctx, id, attemptedAt); err != nil {
			return result, fmt.Errorf("failed to persist sync failure: %w", err)
		}
	}

	if result.OK {
		if err := o.stats.RecordSynced(ctx, submission.FormName, attemptedAt); err != nil {
			o.logger.Warn().Err(err).Stringer("submission_id", id).Msg("failed to update synced counter")
		}
	}

	if result.OK {
		o.logger.Info().
			Stringer("submission_id", id).
			Str("remote_id", result.RemoteID).
			Str("operation", string(operation)).
			Msg("submission synced")
	} else {
		o.logger.Error().
			Stringer("submission_id", id).
			Str("error", result.Err).
			Msg("submission sync failed")
	}

	o.logActivityNote(ctx, submission)

	return result, nil
}

// logActivityNote records a note against the remote contact. This is a
// secondary effect: any failure here is swallowed and never alters the
// submission's lifecycle state.
func (o *Orchestrator) logActivityNote(ctx context.Context, submission domain.Submission) {
	note := fmt.Sprintf("Contact form submission via %s: %s", submission.FormName, submission.Message)
	activity := o.directory.LogActivity(ctx, submission.Email, note)
	if !activity.OK {
		o.logger.Warn().
			Stringer("submission_id", submission.ID).
			Str("error", activity.Err).
			Msg("failed to log activity note")
	}
}

func (o *Orchestrator) nextAttemptOrdinal(ctx context.Context, id uuid.UUID) (int, error) {
	prior, err := o.attempts.ListBySubmission(ctx, id, 0, 0)
	if err != nil {
		return 0, err
	}
	return len(prior) + 1, nil
}

// emailLock is a reference-counted mutex. The entry is removed from the map
// once no holder or waiter remains, so the lock table stays bounded by the
// number of in-flight syncs rather than the number of distinct emails seen.
type emailLock struct {
	mu   sync.Mutex
	refs int
}

func (o *Orchestrator) lockEmail(email string) func() {
	o.mu.Lock()
	lock, ok := o.emailLocks[email]
	if !ok {
		lock = &emailLock{}
		o.emailLocks[email] = lock
	}
	lock.refs++
	o.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		o.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(o.emailLocks, email)
		}
		o.mu.Unlock()
	}
}

func contactFromSubmission(submission domain.Submission) domain.Contact {
	custom := map[string]string{}
	if submission.UseCase != "" {
		custom["use_case"] = submission.UseCase
	}
	if submission.Message != "" {
		custom["message"] = submission.Message
	}
	return domain.Contact{
		Email:        submission.Email,
		Name:         submission.Name,
		Company:      submission.Company,
		Lifecycle:    "lead",
		CustomFields: custom,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
