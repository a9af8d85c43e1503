package tracker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrich-cli/internal/model"
)

func newTestTracker(t *testing.T, opts Options) (*Tracker, *time.Time) {
	t.Helper()
	tr := New("run_test", opts)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return now }
	return tr, &now
}

func submit(t *testing.T, tr *Tracker, contactID string) string {
	t.Helper()
	key, err := tr.Submit(context.Background(), model.Contact{ID: contactID, OrganizationID: "org_1"})
	require.NoError(t, err)
	require.NotEmpty(t, key)
	return key
}

func payload(key string, numbers ...string) model.WebhookPayload {
	p := model.WebhookPayload{CorrelationKey: key}
	for _, n := range numbers {
		p.Phones = append(p.Phones, model.PhoneNumber{Number: n, Type: "work", Confidence: 0.9})
	}
	return p
}

func TestSubmitAndReceive(t *testing.T) {
	tr, _ := newTestTracker(t, Options{})
	key := submit(t, tr, "p_1")
	assert.Equal(t, 1, tr.Pending())

	contactID, err := tr.Receive(context.Background(), payload(key, "+1 555 0100"))
	require.NoError(t, err)
	assert.Equal(t, "p_1", contactID)
	assert.Equal(t, 0, tr.Pending())

	res := tr.Results()
	require.Contains(t, res, "p_1")
	assert.Equal(t, "+1 555 0100", res["p_1"][0].Number)
}

func TestSubmit_DuplicateRejected(t *testing.T) {
	tr, _ := newTestTracker(t, Options{})
	key := submit(t, tr, "p_1")

	_, err := tr.Submit(context.Background(), model.Contact{ID: "p_1"})
	require.ErrorIs(t, err, ErrDuplicateRequest)

	// The original request is untouched and still fulfillable.
	contactID, err := tr.Receive(context.Background(), payload(key, "+1 555 0100"))
	require.NoError(t, err)
	assert.Equal(t, "p_1", contactID)
}

func TestSubmit_AllowedAgainAfterTerminal(t *testing.T) {
	tr, now := newTestTracker(t, Options{Timeout: 10 * time.Minute})
	submit(t, tr, "p_1")

	*now = now.Add(11 * time.Minute)
	tr.Sweep(context.Background(), *now)

	// Terminal state frees the contact for a fresh request.
	submit(t, tr, "p_1")
	assert.Equal(t, 1, tr.Pending())
}

func TestReceive_DuplicateDeliveryIsOrphan(t *testing.T) {
	tr, _ := newTestTracker(t, Options{})
	key := submit(t, tr, "p_1")

	first := payload(key, "+1 555 0100")
	_, err := tr.Receive(context.Background(), first)
	require.NoError(t, err)

	// Redelivery with different numbers: classified orphan, stored data
	// unchanged, exactly one fulfilled transition.
	_, err = tr.Receive(context.Background(), payload(key, "+1 555 9999"))
	require.ErrorIs(t, err, ErrOrphanPayload)

	res := tr.Results()
	require.Len(t, res["p_1"], 1)
	assert.Equal(t, "+1 555 0100", res["p_1"][0].Number)
	assert.Len(t, tr.Orphans(), 1)
}

func TestReceive_UnknownKeyIsOrphan(t *testing.T) {
	tr, _ := newTestTracker(t, Options{})
	_, err := tr.Receive(context.Background(), payload("no-such-key", "+1 555 0100"))
	require.ErrorIs(t, err, ErrOrphanPayload)
	assert.Len(t, tr.Orphans(), 1)
}

func TestReceive_FallsBackToContactID(t *testing.T) {
	tr, _ := newTestTracker(t, Options{})
	submit(t, tr, "p_1")

	p := payload("", "+1 555 0100")
	p.ContactID = "p_1"
	contactID, err := tr.Receive(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "p_1", contactID)
}

func TestSweep_ExpiresOnlyStaleRequests(t *testing.T) {
	tr, now := newTestTracker(t, Options{Timeout: 10 * time.Minute})
	submit(t, tr, "p_old")

	*now = now.Add(6 * time.Minute)
	submit(t, tr, "p_new")

	*now = now.Add(5 * time.Minute) // p_old at 11m, p_new at 5m
	expired := tr.Sweep(context.Background(), *now)

	require.Len(t, expired, 1)
	assert.Equal(t, "p_old", expired[0].ContactID)
	assert.Equal(t, model.RequestExpired, expired[0].Status)
	assert.Equal(t, 1, tr.Pending())

	// A payload arriving after expiry is an orphan; no phone data lands.
	_, err := tr.Receive(context.Background(), payload(expired[0].CorrelationKey, "+1 555 0100"))
	require.ErrorIs(t, err, ErrOrphanPayload)
	assert.Empty(t, tr.Results())
}

func TestWait_ReturnsWhenAllResolve(t *testing.T) {
	tr, _ := newTestTracker(t, Options{PollInterval: 5 * time.Millisecond})
	key := submit(t, tr, "p_1")

	go func() {
		time.Sleep(15 * time.Millisecond)
		_, _ = tr.Receive(context.Background(), payload(key, "+1 555 0100"))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, tr.Wait(ctx))
	assert.Equal(t, 0, tr.Pending())
}

func TestWait_BoundedByTimeoutSweep(t *testing.T) {
	tr, _ := newTestTracker(t, Options{Timeout: time.Minute, PollInterval: 5 * time.Millisecond})

	var clockMu sync.Mutex
	clock := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return clock
	}
	submit(t, tr, "p_1")

	go func() {
		time.Sleep(15 * time.Millisecond)
		clockMu.Lock()
		clock = clock.Add(2 * time.Minute)
		clockMu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, tr.Wait(ctx))

	reqs := tr.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, model.RequestExpired, reqs[0].Status)
}

type recordingMirror struct {
	upserts []model.PendingPhoneRequest
}

func (m *recordingMirror) UpsertPhoneRequest(_ context.Context, req model.PendingPhoneRequest) error {
	m.upserts = append(m.upserts, req)
	return nil
}

func TestMirror_SeesEveryTransition(t *testing.T) {
	m := &recordingMirror{}
	tr, _ := newTestTracker(t, Options{Mirror: m})

	key := submit(t, tr, "p_1")
	_, err := tr.Receive(context.Background(), payload(key, "+1 555 0100"))
	require.NoError(t, err)

	require.Len(t, m.upserts, 2)
	assert.Equal(t, model.RequestPending, m.upserts[0].Status)
	assert.Equal(t, model.RequestFulfilled, m.upserts[1].Status)
}
