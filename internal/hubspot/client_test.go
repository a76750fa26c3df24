package hubspot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lumenweb/contactsync/internal/domain"
	"github.com/lumenweb/contactsync/internal/retry"

	"github.com/rs/zerolog"
)

// fakeCRM is a minimal in-memory stand-in for the remote contact directory.
type fakeCRM struct {
	mu       sync.Mutex
	contacts map[string]string // email -> id
	nextID   int

	searches int
	creates  int
	updates  int
	notes    int

	// failures holds canned statuses returned before normal handling,
	// consumed one per request.
	failures []int
}

func newFakeCRM() *fakeCRM {
	return &fakeCRM{contacts: map[string]string{}, nextID: 100}
}

func (f *fakeCRM) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		if len(f.failures) > 0 {
			status := f.failures[0]
			f.failures = f.failures[1:]
			w.WriteHeader(status)
			fmt.Fprintf(w, `{"message":"canned failure"}`)
			return
		}

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/crm/v3/objects/contacts/search":
			f.searches++
			var req searchRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			email := ""
			if len(req.FilterGroups) > 0 && len(req.FilterGroups[0].Filters) > 0 {
				email = req.FilterGroups[0].Filters[0].Value
			}
			resp := searchResponse{}
			if id, ok := f.contacts[email]; ok {
				resp.Total = 1
				resp.Results = []objectResult{{ID: id}}
			}
			writeResponse(w, http.StatusOK, resp)
		case r.Method == http.MethodPost && r.URL.Path == "/crm/v3/objects/contacts":
			f.creates++
			var req objectRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			f.nextID++
			id := fmt.Sprintf("%d", f.nextID)
			f.contacts[req.Properties["email"]] = id
			writeResponse(w, http.StatusCreated, objectResult{ID: id})
		case r.Method == http.MethodPatch && strings.HasPrefix(r.URL.Path, "/crm/v3/objects/contacts/"):
			f.updates++
			id := strings.TrimPrefix(r.URL.Path, "/crm/v3/objects/contacts/")
			writeResponse(w, http.StatusOK, objectResult{ID: id})
		case r.Method == http.MethodPost && r.URL.Path == "/crm/v3/objects/deals":
			f.nextID++
			writeResponse(w, http.StatusCreated, objectResult{ID: fmt.Sprintf("deal-%d", f.nextID)})
		case r.Method == http.MethodPost && r.URL.Path == "/crm/v3/objects/notes":
			f.notes++
			writeResponse(w, http.StatusCreated, objectResult{ID: "note-1"})
		case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/crm/v3/lists/"):
			writeResponse(w, http.StatusOK, map[string]any{"recordsIdsAdded": []string{}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func writeResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (f *fakeCRM) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.searches + f.creates + f.updates + f.notes
}

func newTestClient(t *testing.T, crm *fakeCRM, delays *[]time.Duration) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(crm.handler())
	t.Cleanup(server.Close)

	executor := retry.NewExecutor(zerolog.Nop(), retry.WithSleep(func(ctx context.Context, d time.Duration) error {
		if delays != nil {
			*delays = append(*delays, d)
		}
		return nil
	}))

	client := NewClient(Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
		ListID:  "42",
		Policy:  retry.Policy{MaxAttempts: 3, AttemptTimeout: 5 * time.Second, InitialBackoff: 2 * time.Second},
	}, executor, zerolog.Nop())

	return client, server
}

func TestSyncContactCreatesWhenAbsent(t *testing.T) {
	crm := newFakeCRM()
	client, _ := newTestClient(t, crm, nil)

	result := client.SyncContact(context.Background(), domain.Contact{
		Name:  "Jane Roe",
		Email: "jane@example.com",
		CustomFields: map[string]string{
			"message": "hi",
		},
	})

	if !result.OK {
		t.Fatalf("expected success, got error: %s", result.Err)
	}
	if result.RemoteID == "" {
		t.Fatalf("expected a remote id")
	}
	if result.Operation != domain.SyncOperationCreate {
		t.Fatalf("expected create operation, got %s", result.Operation)
	}
	if crm.searches != 1 || crm.creates != 1 || crm.updates != 0 {
		t.Fatalf("expected one search and one create, got searches=%d creates=%d updates=%d", crm.searches, crm.creates, crm.updates)
	}
}

func TestSyncContactUpdatesWhenPresent(t *testing.T) {
	crm := newFakeCRM()
	client, _ := newTestClient(t, crm, nil)

	first := client.SyncContact(context.Background(), domain.Contact{Name: "Jane Roe", Email: "jane@example.com"})
	if !first.OK {
		t.Fatalf("first sync failed: %s", first.Err)
	}

	second := client.SyncContact(context.Background(), domain.Contact{Name: "Jane Roe", Email: "jane@example.com", Company: "Example Corp"})
	if !second.OK {
		t.Fatalf("second sync failed: %s", second.Err)
	}
	if second.Operation != domain.SyncOperationUpdate {
		t.Fatalf("expected update operation, got %s", second.Operation)
	}
	if second.RemoteID != first.RemoteID {
		t.Fatalf("remote id changed across syncs: %s vs %s", first.RemoteID, second.RemoteID)
	}
	if crm.creates != 1 {
		t.Fatalf("expected exactly one create across both syncs, got %d", crm.creates)
	}
	if crm.updates != 1 {
		t.Fatalf("expected one update on the second sync, got %d", crm.updates)
	}
}

func TestSyncContactRecoversFromRateLimit(t *testing.T) {
	crm := newFakeCRM()
	crm.failures = []int{429, 429}
	var delays []time.Duration
	client, _ := newTestClient(t, crm, &delays)

	result := client.SyncContact(context.Background(), domain.Contact{Name: "Jane Roe", Email: "jane@example.com"})

	if !result.OK {
		t.Fatalf("expected success after rate limit recovery, got %s", result.Err)
	}
	// Two 429s on the search call mean two backoff waits: 2s then 4s.
	if len(delays) != 2 || delays[0] != 2*time.Second || delays[1] != 4*time.Second {
		t.Fatalf("expected backoff waits [2s 4s], got %v", delays)
	}
}

func TestSyncContactFailsImmediatelyOnUnauthorized(t *testing.T) {
	crm := newFakeCRM()
	crm.failures = []int{401}
	client, _ := newTestClient(t, crm, nil)

	result := client.SyncContact(context.Background(), domain.Contact{Name: "Jane Roe", Email: "jane@example.com"})

	if result.OK {
		t.Fatalf("expected failure")
	}
	if !strings.Contains(result.Err, "401") {
		t.Fatalf("expected error mentioning 401, got %s", result.Err)
	}
	if crm.requestCount() != 0 {
		t.Fatalf("expected no successful handling beyond the canned failure, got %d handled requests", crm.requestCount())
	}
}

func TestSyncContactFailsWithoutAPIKeyBeforeAnyCall(t *testing.T) {
	crm := newFakeCRM()
	server := httptest.NewServer(crm.handler())
	defer server.Close()

	executor := retry.NewExecutor(zerolog.Nop())
	client := NewClient(Config{APIKey: "", BaseURL: server.URL}, executor, zerolog.Nop())

	result := client.SyncContact(context.Background(), domain.Contact{Name: "Jane Roe", Email: "jane@example.com"})

	if result.OK {
		t.Fatalf("expected failure")
	}
	if !strings.Contains(result.Err, "HUBSPOT_API_KEY") {
		t.Fatalf("expected error naming HUBSPOT_API_KEY, got %s", result.Err)
	}
	if crm.requestCount() != 0 {
		t.Fatalf("expected zero network calls, got %d", crm.requestCount())
	}
}

func TestSyncContactRejectsMalformedCreateResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/crm/v3/objects/contacts/search" {
			writeResponse(w, http.StatusOK, searchResponse{})
			return
		}
		// create response with no id field
		writeResponse(w, http.StatusCreated, map[string]any{"createdAt": "2026-01-01"})
	}))
	defer server.Close()

	executor := retry.NewExecutor(zerolog.Nop())
	client := NewClient(Config{APIKey: "test-key", BaseURL: server.URL, Policy: retry.Policy{MaxAttempts: 1, AttemptTimeout: time.Second, InitialBackoff: time.Millisecond}}, executor, zerolog.Nop())

	result := client.SyncContact(context.Background(), domain.Contact{Name: "Jane Roe", Email: "jane@example.com"})

	if result.OK {
		t.Fatalf("expected failure for response missing id")
	}
	if !strings.Contains(result.Err, "missing id") {
		t.Fatalf("expected malformed-response error, got %s", result.Err)
	}
}

func TestAddToListLooksUpThenAdds(t *testing.T) {
	crm := newFakeCRM()
	client, _ := newTestClient(t, crm, nil)

	created := client.SyncContact(context.Background(), domain.Contact{Name: "Jane Roe", Email: "jane@example.com"})
	if !created.OK {
		t.Fatalf("setup sync failed: %s", created.Err)
	}

	result := client.AddToList(context.Background(), "jane@example.com")
	if !result.OK {
		t.Fatalf("expected list add to succeed, got %s", result.Err)
	}
	if result.Operation != domain.SyncOperationListAdd {
		t.Fatalf("expected list_add operation, got %s", result.Operation)
	}
	if result.RemoteID != created.RemoteID {
		t.Fatalf("list add resolved wrong contact: %s vs %s", result.RemoteID, created.RemoteID)
	}
}

func TestCreateDealAppliesConfiguredDefaults(t *testing.T) {
	crm := newFakeCRM()
	client, _ := newTestClient(t, crm, nil)

	result := client.CreateDeal(context.Background(), domain.Deal{Name: "Example Corp evaluation", Amount: "5000"})
	if !result.OK {
		t.Fatalf("expected deal creation to succeed, got %s", result.Err)
	}
	if result.RemoteID == "" {
		t.Fatalf("expected a deal id")
	}
}

func TestCreateDealRequiresName(t *testing.T) {
	crm := newFakeCRM()
	client, _ := newTestClient(t, crm, nil)

	result := client.CreateDeal(context.Background(), domain.Deal{})
	if result.OK {
		t.Fatalf("expected failure for a nameless deal")
	}
	if crm.requestCount() != 0 {
		t.Fatalf("expected no network call, got %d", crm.requestCount())
	}
}

func TestLogActivityFailsWhenContactMissing(t *testing.T) {
	crm := newFakeCRM()
	client, _ := newTestClient(t, crm, nil)

	result := client.LogActivity(context.Background(), "nobody@example.com", "note")

	if result.OK {
		t.Fatalf("expected failure for missing contact")
	}
	if !result.NotFound() {
		t.Fatalf("expected contact-not-found failure, got %s", result.Err)
	}
	if crm.notes != 0 {
		t.Fatalf("expected no note created, got %d", crm.notes)
	}
}

func TestLogActivityCreatesNoteForExistingContact(t *testing.T) {
	crm := newFakeCRM()
	client, _ := newTestClient(t, crm, nil)

	created := client.SyncContact(context.Background(), domain.Contact{Name: "Jane Roe", Email: "jane@example.com"})
	if !created.OK {
		t.Fatalf("setup sync failed: %s", created.Err)
	}

	result := client.LogActivity(context.Background(), "jane@example.com", "followed up")
	if !result.OK {
		t.Fatalf("expected note to be logged, got %s", result.Err)
	}
	if crm.notes != 1 {
		t.Fatalf("expected one note, got %d", crm.notes)
	}
}
