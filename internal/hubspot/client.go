package hubspot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lumenweb/contactsync/internal/domain"
	"github.com/lumenweb/contactsync/internal/retry"

	"github.com/rs/zerolog"
)

// APIError carries a non-2xx response from the remote API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hubspot api error: status %d: %s", e.Status, e.Body)
}

// HTTPStatus exposes the status for retryability classification.
func (e *APIError) HTTPStatus() int {
	return e.Status
}

// Config carries the client settings. The API key is injected here at
// construction; the client never reads process environment.
type Config struct {
	APIKey       string
	BaseURL      string
	ListID       string
	DealPipeline string
	DealStage    string
	Policy       retry.Policy
}

// Client talks to the CRM's v3 object API. All outbound calls go through
// the retry executor. No method lets an error escape past its boundary:
// callers always get a Result.
type Client struct {
	cfg        Config
	httpClient *http.Client
	executor   *retry.Executor
	logger     zerolog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client, used by tests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// NewClient creates a directory client.
func NewClient(cfg Config, executor *retry.Executor, logger zerolog.Logger, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.hubapi.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Policy.MaxAttempts == 0 {
		cfg.Policy = retry.DefaultPolicy()
	}
	client := &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		executor:   executor,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type searchRequest struct {
	FilterGroups []filterGroup `json:"filterGroups"`
	Sorts        []sort        `json:"sorts,omitempty"`
	Properties   []string      `json:"properties,omitempty"`
	Limit        int           `json:"limit"`
}

type filterGroup struct {
	Filters []filter `json:"filters"`
}

type filter struct {
	PropertyName string `json:"propertyName"`
	Operator     string `json:"operator"`
	Value        string `json:"value"`
}

type sort struct {
	PropertyName string `json:"propertyName"`
	Direction    string `json:"direction"`
}

type searchResponse struct {
	Total   int            `json:"total"`
	Results []objectResult `json:"results"`
}

type objectResult struct {
	ID string `json:"id"`
}

type objectRequest struct {
	Properties map[string]string `json:"properties"`
}

type noteRequest struct {
	Properties   map[string]string `json:"properties"`
	Associations []noteAssociation `json:"associations"`
}

type noteAssociation struct {
	To    noteTarget `json:"to"`
	Types []noteType `json:"types"`
}

type noteTarget struct {
	ID string `json:"id"`
}

type noteType struct {
	AssociationCategory string `json:"associationCategory"`
	AssociationTypeID   int    `json:"associationTypeId"`
}

// note-to-contact association in the remote API's default taxonomy
const noteToContactTypeID = 202

// FindContactByEmail issues a single filtered search for the exact email and
// returns the first match, tie-broken by descending object id when the remote
// side holds duplicates. Found is false when no contact matches.
func (c *Client) FindContactByEmail(ctx context.Context, email string) (string, bool, error) {
	if c.cfg.APIKey == "" {
		return "", false, c.missingKeyError()
	}

	req := searchRequest{
		FilterGroups: []filterGroup{
			{Filters: []filter{{PropertyName: "email", Operator: "EQ", Value: email}}},
		},
		Sorts:      []sort{{PropertyName: "hs_object_id", Direction: "DESCENDING"}},
		Properties: []string{"email"},
		Limit:      1,
	}

	var resp searchResponse
	if err := c.call(ctx, "contacts.search", http.MethodPost, "/crm/v3/objects/contacts/search", req, &resp); err != nil {
		return "", false, err
	}
	if len(resp.Results) == 0 {
		return "", false, nil
	}
	if resp.Results[0].ID == "" {
		return "", false, fmt.Errorf("malformed search response: result missing id")
	}
	return resp.Results[0].ID, true, nil
}

// SyncContact upserts a contact keyed by email: search first, then patch the
// existing record or create a new one. The attribute set is encoded as a flat
// properties map, one key per attribute.
func (c *Client) SyncContact(ctx context.Context, contact domain.Contact) Result {
	if c.cfg.APIKey == "" {
		return Fail(c.missingKeyError())
	}
	if contact.Email == "" {
		return Fail(fmt.Errorf("contact email is required"))
	}

	properties := contactProperties(contact)

	remoteID, found, err := c.FindContactByEmail(ctx, contact.Email)
	if err != nil {
		return Fail(fmt.Errorf("failed to search contact: %w", err))
	}

	c.logger.Debug().
		Str("email", contact.Email).
		Bool("exists", found).
		Msg("resolved contact identity")

	if found {
		path := "/crm/v3/objects/contacts/" + remoteID
		var resp objectResult
		if err := c.call(ctx, "contacts.update", http.MethodPatch, path, objectRequest{Properties: properties}, &resp); err != nil {
			return Fail(fmt.Errorf("failed to update contact: %w", err)).WithOperation(domain.SyncOperationUpdate)
		}
		return Ok(remoteID).WithOperation(domain.SyncOperationUpdate)
	}

	var resp objectResult
	if err := c.call(ctx, "contacts.create", http.MethodPost, "/crm/v3/objects/contacts", objectRequest{Properties: properties}, &resp); err != nil {
		return Fail(fmt.Errorf("failed to create contact: %w", err)).WithOperation(domain.SyncOperationCreate)
	}
	if resp.ID == "" {
		return Fail(fmt.Errorf("malformed create response: missing id")).WithOperation(domain.SyncOperationCreate)
	}
	return Ok(resp.ID).WithOperation(domain.SyncOperationCreate)
}

// AddToList adds the contact with the given email to the configured static
// list. The membership endpoint is addressed by record id, so a lookup runs
// first.
func (c *Client) AddToList(ctx context.Context, email string) Result {
	if c.cfg.APIKey == "" {
		return Fail(c.missingKeyError())
	}
	if c.cfg.ListID == "" {
		return Fail(fmt.Errorf("list id is not configured"))
	}

	remoteID, found, err := c.FindContactByEmail(ctx, email)
	if err != nil {
		return Fail(fmt.Errorf("failed to search contact: %w", err))
	}
	if !found {
		return Fail(ErrContactNotFound)
	}

	path := "/crm/v3/lists/" + c.cfg.ListID + "/memberships/add"
	if err := c.call(ctx, "lists.add", http.MethodPut, path, []string{remoteID}, nil); err != nil {
		return Fail(fmt.Errorf("failed to add contact to list: %w", err)).WithOperation(domain.SyncOperationListAdd)
	}
	return Ok(remoteID).WithOperation(domain.SyncOperationListAdd)
}

// CreateDeal creates a deal with the configured pipeline and stage defaults.
func (c *Client) CreateDeal(ctx context.Context, deal domain.Deal) Result {
	if c.cfg.APIKey == "" {
		return Fail(c.missingKeyError())
	}
	if deal.Name == "" {
		return Fail(fmt.Errorf("deal name is required"))
	}

	properties := map[string]string{
		"dealname": deal.Name,
	}
	if deal.Stage != "" {
		properties["dealstage"] = deal.Stage
	} else if c.cfg.DealStage != "" {
		properties["dealstage"] = c.cfg.DealStage
	}
	if c.cfg.DealPipeline != "" {
		properties["pipeline"] = c.cfg.DealPipeline
	}
	if deal.Amount != "" {
		properties["amount"] = deal.Amount
	}
	for key, value := range deal.CustomFields {
		properties[key] = value
	}

	var resp objectResult
	if err := c.call(ctx, "deals.create", http.MethodPost, "/crm/v3/objects/deals", objectRequest{Properties: properties}, &resp); err != nil {
		return Fail(fmt.Errorf("failed to create deal: %w", err))
	}
	if resp.ID == "" {
		return Fail(fmt.Errorf("malformed deal response: missing id"))
	}
	return Ok(resp.ID)
}

// LogActivity records a note engagement on the contact with the given email.
// The contact must already exist; a miss is reported as ErrContactNotFound.
func (c *Client) LogActivity(ctx context.Context, email string, note string) Result {
	if c.cfg.APIKey == "" {
		return Fail(c.missingKeyError())
	}

	remoteID, found, err := c.FindContactByEmail(ctx, email)
	if err != nil {
		return Fail(fmt.Errorf("failed to search contact: %w", err))
	}
	if !found {
		return Fail(ErrContactNotFound)
	}

	req := noteRequest{
		Properties: map[string]string{
			"hs_note_body": note,
			"hs_timestamp": time.Now().UTC().Format(time.RFC3339),
		},
		Associations: []noteAssociation{
			{
				To: noteTarget{ID: remoteID},
				Types: []noteType{
					{AssociationCategory: "HUBSPOT_DEFINED", AssociationTypeID: noteToContactTypeID},
				},
			},
		},
	}

	var resp objectResult
	if err := c.call(ctx, "notes.create", http.MethodPost, "/crm/v3/objects/notes", req, &resp); err != nil {
		return Fail(fmt.Errorf("failed to log activity: %w", err))
	}
	return Ok(remoteID)
}

// Ping verifies the credential with a minimal search call. Used by the
// health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	if c.cfg.APIKey == "" {
		return c.missingKeyError()
	}
	req := searchRequest{
		FilterGroups: []filterGroup{
			{Filters: []filter{{PropertyName: "email", Operator: "EQ", Value: "healthcheck@invalid.example"}}},
		},
		Limit: 1,
	}
	var resp searchResponse
	return c.call(ctx, "contacts.ping", http.MethodPost, "/crm/v3/objects/contacts/search", req, &resp)
}

func (c *Client) missingKeyError() error {
	return fmt.Errorf("HUBSPOT_API_KEY is not configured")
}

// contactProperties flattens named fields plus custom fields into the
// one-key-per-attribute map the v3 API expects.
func contactProperties(contact domain.Contact) map[string]string {
	properties := map[string]string{
		"email": contact.Email,
	}
	if contact.Name != "" {
		first, last := splitName(contact.Name)
		properties["firstname"] = first
		if last != "" {
			properties["lastname"] = last
		}
	}
	if contact.Company != "" {
		properties["company"] = contact.Company
	}
	if contact.Lifecycle != "" {
		properties["lifecyclestage"] = contact.Lifecycle
	}
	for key, value := range contact.CustomFields {
		properties[key] = value
	}
	return properties
}

func splitName(name string) (string, string) {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return "", ""
	}
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

// call performs one logical API call through the retry executor. Each attempt
// issues a fresh request; decoding happens inside the attempt so a truncated
// response body is retried like any other transport failure.
func (c *Client) call(ctx context.Context, name string, method string, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	return c.executor.Do(ctx, name, c.cfg.Policy, func(attemptCtx context.Context) error {
		req, reqErr := http.NewRequestWithContext(attemptCtx, method, c.cfg.BaseURL+path, bytes.NewReader(payload))
		if reqErr != nil {
			return fmt.Errorf("failed to build request: %w", reqErr)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

		resp, doErr := c.httpClient.Do(req)
		if doErr != nil {
			return doErr
		}
		defer resp.Body.Close()

		data, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("failed to read response: %w", readErr)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
		}

		if out != nil && len(data) > 0 {
			if decodeErr := json.Unmarshal(data, out); decodeErr != nil {
				return fmt.Errorf("failed to decode response: %w", decodeErr)
			}
		}
		return nil
	})
}
