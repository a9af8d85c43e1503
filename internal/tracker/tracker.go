// Package tracker correlates outbound phone requests with their asynchronous
// webhook fulfillments. The provider delivers results out of band and out of
// order, anywhere from minutes to half an hour later, so correlation is keyed
// by a stable UUID rather than sequence.
package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/model"
)

// DefaultTimeout bounds how long a pending request may wait for its webhook
// before being expired. The provider states a 5 to 30 minute delivery window.
const DefaultTimeout = 30 * time.Minute

var (
	// ErrDuplicateRequest rejects a second submission for a contact whose
	// request is still pending. The existing request is left untouched.
	ErrDuplicateRequest = eris.New("phone request already pending for contact")

	// ErrOrphanPayload classifies a delivery that matches no live request:
	// unknown key, late arrival after expiry, or a redelivered duplicate.
	ErrOrphanPayload = eris.New("orphan webhook payload")
)

// Mirror persists request transitions so a separately running webhook server
// can fulfil requests after the submitting process exits.
type Mirror interface {
	UpsertPhoneRequest(ctx context.Context, req model.PendingPhoneRequest) error
}

// Options configures a Tracker.
type Options struct {
	// Timeout expires pending requests. Zero means DefaultTimeout.
	Timeout time.Duration

	// PollInterval paces Wait's checks. Zero means one second.
	PollInterval time.Duration

	// Mirror, when set, receives every state transition.
	Mirror Mirror
}

// Tracker owns the pending-request state for one run. Submit runs on the
// pipeline workers and Receive on the webhook handler; every transition is
// compare-and-transition under the lock, so a request fulfils exactly once.
type Tracker struct {
	runID   string
	timeout time.Duration
	poll    time.Duration
	mirror  Mirror
	now     func() time.Time
	newKey  func() string

	mu        sync.Mutex
	byKey     map[string]*model.PendingPhoneRequest
	byContact map[string]string
	orphans   []model.WebhookPayload
}

// New creates a tracker for the given run.
func New(runID string, opts Options) *Tracker {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	return &Tracker{
		runID:     runID,
		timeout:   opts.Timeout,
		poll:      opts.PollInterval,
		mirror:    opts.Mirror,
		now:       time.Now,
		newKey:    uuid.NewString,
		byKey:     make(map[string]*model.PendingPhoneRequest),
		byContact: make(map[string]string),
	}
}

// Submit records a new pending request for the contact and returns its
// correlation key. A contact with a live request is rejected with
// ErrDuplicateRequest.
func (t *Tracker) Submit(ctx context.Context, c model.Contact) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if key, ok := t.byContact[c.ID]; ok {
		if req := t.byKey[key]; req != nil && !req.Status.Terminal() {
			return "", eris.Wrapf(ErrDuplicateRequest, "contact %s", c.ID)
		}
	}

	req := &model.PendingPhoneRequest{
		CorrelationKey: t.newKey(),
		ContactID:      c.ID,
		OrganizationID: c.OrganizationID,
		RunID:          t.runID,
		Status:         model.RequestPending,
		RequestedAt:    t.now(),
	}
	t.byKey[req.CorrelationKey] = req
	t.byContact[c.ID] = req.CorrelationKey

	t.mirrorLocked(ctx, *req)
	return req.CorrelationKey, nil
}

// Receive applies a webhook payload. A pending request transitions to
// fulfilled and the payload's numbers are attached; anything else is an
// orphan: logged, counted, no state mutated.
func (t *Tracker) Receive(ctx context.Context, p model.WebhookPayload) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	req := t.byKey[p.CorrelationKey]
	if req == nil && p.ContactID != "" {
		req = t.byKey[t.byContact[p.ContactID]]
	}
	if req == nil || req.Status.Terminal() {
		t.orphans = append(t.orphans, p)
		zap.L().Info("orphan webhook payload",
			zap.String("correlation_key", p.CorrelationKey),
			zap.String("contact_id", p.ContactID))
		return "", eris.Wrapf(ErrOrphanPayload, "key %s", p.CorrelationKey)
	}

	now := t.now()
	req.Status = model.RequestFulfilled
	req.ResolvedAt = &now
	req.Phones = p.Phones

	t.mirrorLocked(ctx, *req)
	return req.ContactID, nil
}

// Sweep expires pending requests older than the timeout and returns them.
// Expired contacts surface as "phone not available", not as failures.
func (t *Tracker) Sweep(ctx context.Context, now time.Time) []model.PendingPhoneRequest {
	t.mu.Lock()
	defer t.mu.Unlock()

	var expired []model.PendingPhoneRequest
	for _, req := range t.byKey {
		if req.Status != model.RequestPending {
			continue
		}
		if now.Sub(req.RequestedAt) < t.timeout {
			continue
		}
		resolved := now
		req.Status = model.RequestExpired
		req.ResolvedAt = &resolved
		t.mirrorLocked(ctx, *req)
		expired = append(expired, *req)
	}
	if len(expired) > 0 {
		zap.L().Warn("expired pending phone requests", zap.Int("count", len(expired)))
	}
	return expired
}

// Wait blocks until no requests remain pending, sweeping as it polls. The
// sweep timeout bounds the wait; it never blocks indefinitely.
func (t *Tracker) Wait(ctx context.Context) error {
	ticker := time.NewTicker(t.poll)
	defer ticker.Stop()

	for {
		t.Sweep(ctx, t.now())
		if t.Pending() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Pending returns the number of non-terminal requests.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, req := range t.byKey {
		if !req.Status.Terminal() {
			n++
		}
	}
	return n
}

// Results returns fulfilled phone numbers keyed by contact id.
func (t *Tracker) Results() map[string][]model.PhoneNumber {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string][]model.PhoneNumber)
	for _, req := range t.byKey {
		if req.Status == model.RequestFulfilled {
			out[req.ContactID] = req.Phones
		}
	}
	return out
}

// Requests returns a snapshot of every tracked request.
func (t *Tracker) Requests() []model.PendingPhoneRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.PendingPhoneRequest, 0, len(t.byKey))
	for _, req := range t.byKey {
		out = append(out, *req)
	}
	return out
}

// Orphans returns the payloads that matched no live request.
func (t *Tracker) Orphans() []model.WebhookPayload {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]model.WebhookPayload(nil), t.orphans...)
}

func (t *Tracker) mirrorLocked(ctx context.Context, req model.PendingPhoneRequest) {
	if t.mirror == nil {
		return
	}
	if err := t.mirror.UpsertPhoneRequest(ctx, req); err != nil {
		zap.L().Error("mirroring phone request failed",
			zap.String("correlation_key", req.CorrelationKey),
			zap.Error(err))
	}
}
