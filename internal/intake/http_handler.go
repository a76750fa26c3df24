package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/lumenweb/contactsync/internal/domain"
	"github.com/lumenweb/contactsync/internal/hubspot"
	"github.com/lumenweb/contactsync/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Syncer is the slice of the orchestrator intake needs: fire-and-forget
// scheduling for the form path, synchronous processing for integration tests.
type Syncer interface {
	Enqueue(id uuid.UUID)
	Process(ctx context.Context, id uuid.UUID) (hubspot.Result, error)
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to the Pinger interface.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Handler exposes the contact form endpoints.
type Handler struct {
	submissions repository.SubmissionRepository
	stats       repository.StatsRepository
	syncer      Syncer
	database    Pinger
	crm         Pinger
	logger      zerolog.Logger
}

// NewHandler wires the intake endpoints.
func NewHandler(
	submissions repository.SubmissionRepository,
	stats repository.StatsRepository,
	syncer Syncer,
	database Pinger,
	crm Pinger,
	logger zerolog.Logger,
) *Handler {
	return &Handler{
		submissions: submissions,
		stats:       stats,
		syncer:      syncer,
		database:    database,
		crm:         crm,
		logger:      logger,
	}
}

type contactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Company string `json:"company,omitempty"`
	UseCase string `json:"useCase,omitempty"`
	Message string `json:"message"`
}

func (r contactRequest) validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if strings.TrimSpace(r.Email) == "" {
		return fmt.Errorf("email is required")
	}
	if !emailPattern.MatchString(strings.TrimSpace(r.Email)) {
		return fmt.Errorf("email is not valid")
	}
	if strings.TrimSpace(r.Message) == "" {
		return fmt.Errorf("message is required")
	}
	return nil
}

type contactResponse struct {
	Success      bool      `json:"success"`
	Message      string    `json:"message"`
	SubmissionID uuid.UUID `json:"submissionId"`
	CreatedAt    time.Time `json:"createdAt"`
}

// SubmitContact handles POST /contact. The submission is always accepted
// locally when valid; CRM sync runs detached and is never reflected in this
// response.
func (h *Handler) SubmitContact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	if err := req.validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	submission := domain.Submission{
		FormName: "contact",
		Name:     strings.TrimSpace(req.Name),
		Email:    strings.ToLower(strings.TrimSpace(req.Email)),
		Company:  strings.TrimSpace(req.Company),
		UseCase:  strings.TrimSpace(req.UseCase),
		Message:  strings.TrimSpace(req.Message),
	}

	created, err := h.submissions.Create(r.Context(), submission)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to persist submission")
		if statsErr := h.stats.RecordSubmission(r.Context(), submission.FormName, time.Now().UTC(), false); statsErr != nil {
			h.logger.Warn().Err(statsErr).Msg("failed to update submission counters")
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "failed to save submission"})
		return
	}

	if err := h.stats.RecordSubmission(r.Context(), created.FormName, created.CreatedAt, true); err != nil {
		h.logger.Warn().Err(err).Msg("failed to update submission counters")
	}

	h.syncer.Enqueue(created.ID)

	writeJSON(w, http.StatusCreated, contactResponse{
		Success:      true,
		Message:      "Thanks for reaching out, we'll be in touch shortly.",
		SubmissionID: created.ID,
		CreatedAt:    created.CreatedAt,
	})
}

// Status handles GET /contact and reports dependency health.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	databaseStatus := "ok"
	if err := h.database.Ping(ctx); err != nil {
		databaseStatus = err.Error()
	}
	crmStatus := "ok"
	if err := h.crm.Ping(ctx); err != nil {
		crmStatus = err.Error()
	}

	status := http.StatusOK
	overall := "healthy"
	if databaseStatus != "ok" || crmStatus != "ok" {
		status = http.StatusServiceUnavailable
		overall = "unhealthy"
	}

	// Backlog counts are informational and never flip the health verdict.
	unsynced, err := h.submissions.CountByStatus(ctx, domain.SyncStatusUnsynced)
	if err != nil {
		h.logger.Warn().Err(err).Msg("failed to count unsynced submissions")
	}
	failed, err := h.submissions.CountByStatus(ctx, domain.SyncStatusFailed)
	if err != nil {
		h.logger.Warn().Err(err).Msg("failed to count failed submissions")
	}

	writeJSON(w, status, map[string]any{
		"status":   overall,
		"database": databaseStatus,
		"hubspot":  crmStatus,
		"queue": map[string]int64{
			"unsynced":   unsynced,
			"syncFailed": failed,
		},
	})
}

// IntegrationTest handles GET|POST /integration/test. It pushes a synthetic
// contact through the full sync path synchronously and reports the outcome.
func (h *Handler) IntegrationTest(w http.ResponseWriter, r *http.Request) {
	req := contactRequest{
		Name:    "Integration Test",
		Email:   fmt.Sprintf("integration-test+%d@lumenweb.example", time.Now().UnixNano()),
		Message: "Synthetic submission from the integration test endpoint.",
	}

	if r.Method == http.MethodPost && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": fmt.Sprintf("invalid test input: %v", err)})
			return
		}
		if err := req.validate(); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
	}

	submission := domain.Submission{
		FormName: "integration_test",
		Name:     strings.TrimSpace(req.Name),
		Email:    strings.ToLower(strings.TrimSpace(req.Email)),
		Company:  strings.TrimSpace(req.Company),
		UseCase:  strings.TrimSpace(req.UseCase),
		Message:  strings.TrimSpace(req.Message),
	}

	created, err := h.submissions.Create(r.Context(), submission)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to persist test submission")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "failed to save test submission"})
		return
	}

	result, err := h.syncer.Process(r.Context(), created.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
		return
	}

	if !result.OK {
		status := http.StatusInternalServerError
		if isCredentialFailure(result.Err) {
			status = http.StatusUnauthorized
		}
		writeJSON(w, status, map[string]any{"success": false, "error": result.Err})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"submissionId": created.ID,
		"remoteId":     result.RemoteID,
		"operation":    string(result.Operation),
	})
}

func isCredentialFailure(errText string) bool {
	return strings.Contains(errText, "HUBSPOT_API_KEY") ||
		strings.Contains(errText, "status 401") ||
		strings.Contains(errText, "status 403")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
