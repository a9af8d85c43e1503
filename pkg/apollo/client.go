// Package apollo is a client for the Apollo.io people-intelligence API:
// organization search, people search, paid email reveals and asynchronous
// phone reveals delivered by webhook.
package apollo

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/enrich-cli/internal/resilience"
)

const (
	defaultBaseURL = "https://api.apollo.io/v1"
	defaultPerPage = 25
)

// Client is the provider surface the pipeline depends on. Every call is
// paid or rate limited, so callers treat each one as spend.
type Client interface {
	// SearchOrganizations runs one organization search query and returns
	// the provider's ranked candidates.
	SearchOrganizations(ctx context.Context, query string) ([]Organization, error)

	// SearchPeople lists people at an organization, optionally filtered by
	// title. Emails come back masked.
	SearchPeople(ctx context.Context, orgID string, titles []string) ([]Person, error)

	// RevealEmail enriches a person and reveals their email. Consumes a
	// credit whether or not the caller keeps the result.
	RevealEmail(ctx context.Context, personID string) (*Person, error)

	// RequestPhone asks for a person's phone numbers. The result arrives
	// later on the webhook URL; the correlation key rides along in the URL
	// so the delivery can be matched to its request.
	RequestPhone(ctx context.Context, personID, webhookURL string) error
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

// WithBreaker guards all calls with a circuit breaker.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *httpClient) {
		c.breaker = b
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
}

// NewClient creates an Apollo API client.
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
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) SearchOrganizations(ctx context.Context, query string) ([]Organization, error) {
	var resp orgSearchResponse
	err := c.post(ctx, "/mixed_companies/search", OrgSearchRequest{
		QOrganizationName: query,
		Page:              1,
		PerPage:           defaultPerPage,
	}, &resp)
	if err != nil {
		return nil, eris.Wrapf(err, "apollo: search organizations %q", query)
	}

	// Mixed search splits results between net-new organizations and saved
	// accounts; candidates come from both.
	orgs := append(resp.Organizations, resp.Accounts...)
	return orgs, nil
}

func (c *httpClient) SearchPeople(ctx context.Context, orgID string, titles []string) ([]Person, error) {
	var resp peopleSearchResponse
	err := c.post(ctx, "/mixed_people/search", PeopleSearchRequest{
		OrganizationIDs: []string{orgID},
		PersonTitles:    titles,
		Page:            1,
		PerPage:         100,
	}, &resp)
	if err != nil {
		return nil, eris.Wrapf(err, "apollo: search people for org %s", orgID)
	}
	return append(resp.People, resp.Contacts...), nil
}

func (c *httpClient) RevealEmail(ctx context.Context, personID string) (*Person, error) {
	var resp matchResponse
	err := c.post(ctx, "/people/match", matchRequest{
		ID:                   personID,
		RevealPersonalEmails: true,
	}, &resp)
	if err != nil {
		return nil, eris.Wrapf(err, "apollo: reveal email for person %s", personID)
	}
	if resp.Person == nil {
		return nil, eris.Errorf("apollo: no person in match response for %s", personID)
	}
	return resp.Person, nil
}

func (c *httpClient) RequestPhone(ctx context.Context, personID, webhookURL string) error {
	var resp matchResponse
	err := c.post(ctx, "/people/match", matchRequest{
		ID:                personID,
		RevealPhoneNumber: true,
		WebhookURL:        webhookURL,
	}, &resp)
	return eris.Wrapf(err, "apollo: request phone for person %s", personID)
}

func (c *httpClient) post(ctx context.Context, path string, reqBody, out any) error {
	if c.breaker != nil {
		if err := c.breaker.Allow(); err != nil {
			return err
		}
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return eris.Wrap(err, "marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Cache-Control", "no-cache")
	httpReq.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.http.Do(httpReq)
	if c.breaker != nil {
		defer func() { c.breaker.Record(err) }()
	}
	if err != nil {
		err = eris.Wrap(err, "send request")
		return err
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		err = eris.Wrap(readErr, "read response")
		return err
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		err = resilience.NewRateLimitError(
			eris.Errorf("status 429: %s", string(respBody)),
			parseRetryAfter(resp.Header.Get("Retry-After")))
		return err
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		err = resilience.NewTransientError(
			eris.Errorf("status %d: %s", resp.StatusCode, string(respBody)),
			resp.StatusCode)
		return err
	case resp.StatusCode != http.StatusOK:
		err = eris.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
		return err
	}

	if unmarshalErr := json.Unmarshal(respBody, out); unmarshalErr != nil {
		err = eris.Wrap(unmarshalErr, "unmarshal response")
		return err
	}
	return nil
}

func parseRetryAfter(h string) time.Duration {
	if h == "" {
		return 0
	}
	secs, err := strconv.Atoi(h)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
