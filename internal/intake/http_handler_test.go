package intake

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lumenweb/contactsync/internal/domain"
	"github.com/lumenweb/contactsync/internal/hubspot"
	"github.com/lumenweb/contactsync/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type stubSubmissionRepo struct {
	created []domain.Submission
	failErr error
}

func (r *stubSubmissionRepo) Create(ctx context.Context, submission domain.Submission) (domain.Submission, error) {
	if r.failErr != nil {
		return domain.Submission{}, r.failErr
	}
	if submission.ID == uuid.Nil {
		submission.ID = uuid.New()
	}
	if submission.CreatedAt.IsZero() {
		submission.CreatedAt = time.Now().UTC()
	}
	if submission.SyncStatus == "" {
		submission.SyncStatus = domain.SyncStatusUnsynced
	}
	r.created = append(r.created, submission)
	return submission, nil
}

func (r *stubSubmissionRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Submission, error) {
	for _, submission := range r.created {
		if submission.ID == id {
			return submission, nil
		}
	}
	return domain.Submission{}, repository.ErrSubmissionNotFound
}

func (r *stubSubmissionRepo) MarkSynced(ctx context.Context, id uuid.UUID, remoteID string, syncedAt time.Time) error {
	return nil
}

func (r *stubSubmissionRepo) MarkSyncFailed(ctx context.Context, id uuid.UUID, attemptedAt time.Time) error {
	return nil
}

func (r *stubSubmissionRepo) List(ctx context.Context, status *domain.SyncStatus, limit int, offset int) ([]domain.Submission, error) {
	return r.created, nil
}

func (r *stubSubmissionRepo) CountByStatus(ctx context.Context, status domain.SyncStatus) (int64, error) {
	var count int64
	for _, submission := range r.created {
		if submission.SyncStatus == status {
			count++
		}
	}
	return count, nil
}

type stubStatsRepo struct {
	recorded int
}

func (r *stubStatsRepo) RecordSubmission(ctx context.Context, formName string, day time.Time, accepted bool) error {
	r.recorded++
	return nil
}

func (r *stubStatsRepo) RecordSynced(ctx context.Context, formName string, day time.Time) error {
	return nil
}

func (r *stubStatsRepo) GetRange(ctx context.Context, formName string, from time.Time, to time.Time) ([]domain.DailyFormStats, error) {
	return nil, nil
}

type stubSyncer struct {
	enqueued      []uuid.UUID
	processResult hubspot.Result
	processErr    error
}

func (s *stubSyncer) Enqueue(id uuid.UUID) {
	s.enqueued = append(s.enqueued, id)
}

func (s *stubSyncer) Process(ctx context.Context, id uuid.UUID) (hubspot.Result, error) {
	return s.processResult, s.processErr
}

func okPinger() Pinger {
	return PingFunc(func(ctx context.Context) error { return nil })
}

func failPinger(message string) Pinger {
	return PingFunc(func(ctx context.Context) error { return errors.New(message) })
}

func newTestHandler(submissions *stubSubmissionRepo, stats *stubStatsRepo, syncer *stubSyncer, database Pinger, crm Pinger) *Handler {
	return NewHandler(submissions, stats, syncer, database, crm, zerolog.Nop())
}

func TestSubmitContactAcceptsValidSubmission(t *testing.T) {
	submissions := &stubSubmissionRepo{}
	stats := &stubStatsRepo{}
	syncer := &stubSyncer{}
	handler := newTestHandler(submissions, stats, syncer, okPinger(), okPinger())

	body := `{"name":"Jane Roe","email":"jane@example.com","message":"hi"}`
	req := httptest.NewRequest(http.MethodPost, "/contact", strings.NewReader(body))
	rec := httptest.NewRecorder()

	handler.SubmitContact(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp contactResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !resp.Success || resp.SubmissionID == uuid.Nil {
		t.Fatalf("unexpected response: %+v", resp)
	}

	if len(submissions.created) != 1 {
		t.Fatalf("expected one persisted submission, got %d", len(submissions.created))
	}
	if submissions.created[0].SyncStatus != domain.SyncStatusUnsynced {
		t.Fatalf("expected the submission to start unsynced")
	}
	if len(syncer.enqueued) != 1 || syncer.enqueued[0] != resp.SubmissionID {
		t.Fatalf("expected the submission to be enqueued for sync")
	}
	if stats.recorded != 1 {
		t.Fatalf("expected one counter update, got %d", stats.recorded)
	}
}

func TestSubmitContactValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing name", `{"email":"jane@example.com","message":"hi"}`},
		{"missing email", `{"name":"Jane","message":"hi"}`},
		{"bad email shape", `{"name":"Jane","email":"not-an-email","message":"hi"}`},
		{"missing message", `{"name":"Jane","email":"jane@example.com"}`},
		{"invalid json", `{"name":`},
	}

	for _, tc := range cases {
		submissions := &stubSubmissionRepo{}
		syncer := &stubSyncer{}
		handler := newTestHandler(submissions, &stubStatsRepo{}, syncer, okPinger(), okPinger())

		req := httptest.NewRequest(http.MethodPost, "/contact", strings.NewReader(tc.body))
		rec := httptest.NewRecorder()
		handler.SubmitContact(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", tc.name, rec.Code)
		}
		if len(submissions.created) != 0 {
			t.Fatalf("%s: nothing should be persisted on validation failure", tc.name)
		}
		if len(syncer.enqueued) != 0 {
			t.Fatalf("%s: nothing should be enqueued on validation failure", tc.name)
		}
	}
}

func TestSubmitContactStorageFailure(t *testing.T) {
	submissions := &stubSubmissionRepo{failErr: errors.New("connection closed")}
	handler := newTestHandler(submissions, &stubStatsRepo{}, &stubSyncer{}, okPinger(), okPinger())

	body := `{"name":"Jane Roe","email":"jane@example.com","message":"hi"}`
	req := httptest.NewRequest(http.MethodPost, "/contact", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.SubmitContact(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestStatusHealthy(t *testing.T) {
	handler := newTestHandler(&stubSubmissionRepo{}, &stubStatsRepo{}, &stubSyncer{}, okPinger(), okPinger())

	req := httptest.NewRequest(http.MethodGet, "/contact", nil)
	rec := httptest.NewRecorder()
	handler.Status(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"healthy"`) {
		t.Fatalf("expected healthy status, got %s", rec.Body.String())
	}
}

func TestStatusReportsBacklogCounts(t *testing.T) {
	submissions := &stubSubmissionRepo{}
	for _, status := range []domain.SyncStatus{
		domain.SyncStatusUnsynced,
		domain.SyncStatusUnsynced,
		domain.SyncStatusFailed,
		domain.SyncStatusSynced,
	} {
		if _, err := submissions.Create(context.Background(), domain.Submission{
			FormName:   "contact",
			Email:      "jane@example.com",
			SyncStatus: status,
		}); err != nil {
			t.Fatalf("seed submission: %v", err)
		}
	}
	handler := newTestHandler(submissions, &stubStatsRepo{}, &stubSyncer{}, okPinger(), okPinger())

	req := httptest.NewRequest(http.MethodGet, "/contact", nil)
	rec := httptest.NewRecorder()
	handler.Status(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payload struct {
		Queue struct {
			Unsynced   int64 `json:"unsynced"`
			SyncFailed int64 `json:"syncFailed"`
		} `json:"queue"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode status body: %v", err)
	}
	if payload.Queue.Unsynced != 2 {
		t.Fatalf("expected 2 unsynced, got %d", payload.Queue.Unsynced)
	}
	if payload.Queue.SyncFailed != 1 {
		t.Fatalf("expected 1 sync_failed, got %d", payload.Queue.SyncFailed)
	}
}

func TestStatusUnhealthyWhenDatabaseDown(t *testing.T) {
	handler := newTestHandler(&stubSubmissionRepo{}, &stubStatsRepo{}, &stubSyncer{}, failPinger("connection refused"), okPinger())

	req := httptest.NewRequest(http.MethodGet, "/contact", nil)
	rec := httptest.NewRecorder()
	handler.Status(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"unhealthy"`) {
		t.Fatalf("expected unhealthy status, got %s", rec.Body.String())
	}
}

func TestIntegrationTestSuccess(t *testing.T) {
	syncer := &stubSyncer{processResult: hubspot.Ok("321").WithOperation(domain.SyncOperationCreate)}
	handler := newTestHandler(&stubSubmissionRepo{}, &stubStatsRepo{}, syncer, okPinger(), okPinger())

	req := httptest.NewRequest(http.MethodGet, "/integration/test", nil)
	rec := httptest.NewRecorder()
	handler.IntegrationTest(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"321"`) {
		t.Fatalf("expected remote id in response, got %s", rec.Body.String())
	}
}

func TestIntegrationTestMissingCredential(t *testing.T) {
	syncer := &stubSyncer{processResult: hubspot.Fail(errors.New("HUBSPOT_API_KEY is not configured"))}
	handler := newTestHandler(&stubSubmissionRepo{}, &stubStatsRepo{}, syncer, okPinger(), okPinger())

	req := httptest.NewRequest(http.MethodGet, "/integration/test", nil)
	rec := httptest.NewRecorder()
	handler.IntegrationTest(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestIntegrationTestSyncFailure(t *testing.T) {
	syncer := &stubSyncer{processResult: hubspot.Fail(errors.New("hubspot api error: status 503: upstream down"))}
	handler := newTestHandler(&stubSubmissionRepo{}, &stubStatsRepo{}, syncer, okPinger(), okPinger())

	req := httptest.NewRequest(http.MethodGet, "/integration/test", nil)
	rec := httptest.NewRecorder()
	handler.IntegrationTest(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestIntegrationTestRejectsMalformedInput(t *testing.T) {
	handler := newTestHandler(&stubSubmissionRepo{}, &stubStatsRepo{}, &stubSyncer{}, okPinger(), okPinger())

	req := httptest.NewRequest(http.MethodPost, "/integration/test", strings.NewReader(`{"email":"broken"`))
	rec := httptest.NewRecorder()
	handler.IntegrationTest(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
