// Package closecrm is a client for the Close CRM API: lead extraction from a
// saved search and contact write-back after enrichment.
package closecrm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/resilience"
)

const (
	defaultBaseURL = "https://api.close.com/api/v1"
	pageSize       = 100
)

// Client is the CRM surface the pipeline depends on.
type Client interface {
	// FetchLeads pulls every lead in a saved search and extracts the
	// enrichment snapshot for each. Leads without contacts are dropped.
	FetchLeads(ctx context.Context, savedSearchID string) ([]model.Lead, error)

	// CreateContact adds an enriched contact under a lead and returns the
	// new contact's ID.
	CreateContact(ctx context.Context, leadID, firmName string, c model.Contact) (string, error)

	// FindContactID looks a contact up by exact name, returning "" when no
	// contact matches.
	FindContactID(ctx context.Context, name string) (string, error)

	// UpdateContactPhones replaces a contact's phone numbers. Safe to call
	// again with the same numbers.
	UpdateContactPhones(ctx context.Context, contactID string, phones []model.PhoneNumber) error

	// UpdateLead patches lead fields. Idempotent on the lead ID.
	UpdateLead(ctx context.Context, leadID string, fields map[string]any) error
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit sets the minimum spacing between requests.
func WithRateLimit(minInterval time.Duration) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Every(minInterval), 1)
	}
}

// WithFieldMap overrides the custom-field IDs used during lead extraction.
func WithFieldMap(fields FieldMap) Option {
	return func(c *httpClient) {
		c.fields = fields
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	fields  FieldMap
}

// NewClient creates a Close CRM client. Auth is HTTP basic with the API key
// as username and an empty password.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Every(200*time.Millisecond), 1),
		fields:  DefaultFieldMap(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) FetchLeads(ctx context.Context, savedSearchID string) ([]model.Lead, error) {
	var leads []model.Lead
	for skip := 0; ; skip += pageSize {
		var resp searchResponse
		err := c.do(ctx, http.MethodPost, "/data/search/", searchRequest{
			Query:        searchQuery{Type: "saved_search", SavedSearchID: savedSearchID},
			Fields:       searchFields{Lead: []string{"id", "display_name", "status_id", "name", "contacts", "custom"}},
			ResultsLimit: pageSize,
			Skip:         skip,
		}, &resp)
		if err != nil {
			return nil, eris.Wrapf(err, "close: fetch leads from saved search %s", savedSearchID)
		}

		for _, p := range resp.Data {
			if lead, ok := extractLead(p, c.fields); ok {
				leads = append(leads, lead)
			}
		}
		if len(resp.Data) < pageSize {
			return leads, nil
		}
	}
}

func (c *httpClient) CreateContact(ctx context.Context, leadID, firmName string, contact model.Contact) (string, error) {
	payload := contactPayload{
		LeadID: leadID,
		Name:   contact.FullName(),
		Title:  contact.Title,
		Custom: map[string]any{
			"cf_firm_name": firmName,
			"cf_source":    "Apollo.io enrichment",
		},
	}
	if contact.Email != "" {
		payload.Emails = []emailEntry{{Email: contact.Email, Type: "office"}}
	}

	var created contactPayload
	if err := c.do(ctx, http.MethodPost, "/contact/", payload, &created); err != nil {
		return "", eris.Wrapf(err, "close: create contact on lead %s", leadID)
	}
	return created.ID, nil
}

func (c *httpClient) FindContactID(ctx context.Context, name string) (string, error) {
	path := "/contact/?" + url.Values{"name": {name}, "_limit": {"1"}}.Encode()
	var resp contactListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return "", eris.Wrapf(err, "close: find contact %q", name)
	}
	if len(resp.Data) == 0 {
		return "", nil
	}
	return resp.Data[0].ID, nil
}

func (c *httpClient) UpdateContactPhones(ctx context.Context, contactID string, phones []model.PhoneNumber) error {
	entries := make([]phoneEntry, 0, len(phones))
	for _, p := range phones {
		typ := p.Type
		if typ == "" {
			typ = "other"
		}
		entries = append(entries, phoneEntry{Phone: p.Number, Type: typ})
	}
	err := c.do(ctx, http.MethodPut, "/contact/"+contactID+"/", map[string]any{"phones": entries}, nil)
	return eris.Wrapf(err, "close: update phones for contact %s", contactID)
}

func (c *httpClient) UpdateLead(ctx context.Context, leadID string, fields map[string]any) error {
	err := c.do(ctx, http.MethodPut, "/lead/"+leadID+"/", fields, nil)
	return eris.Wrapf(err, "close: update lead %s", leadID)
}

func (c *httpClient) do(ctx context.Context, method, path string, reqBody, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return eris.Wrap(err, "marshal request")
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.SetBasicAuth(c.apiKey, "")
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response")
	}

	switch {
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		return resilience.NewTransientError(
			eris.Errorf("status %d: %s", resp.StatusCode, string(respBody)),
			resp.StatusCode)
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated:
		return eris.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return eris.Wrap(err, "unmarshal response")
	}
	return nil
}
