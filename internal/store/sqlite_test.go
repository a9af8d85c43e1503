package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrich-cli/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLite_RunLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, model.ModeDryRun)
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunRunning, run.Status)

	summary := model.Summary{Leads: 10, Matched: 7, NoMatch: 2, Ambiguous: 1}
	require.NoError(t, s.FinishRun(ctx, run.ID, model.RunCompleted, summary))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, got.Status)
	assert.Equal(t, model.ModeDryRun, got.Mode)
	require.NotNil(t, got.Summary)
	assert.Equal(t, 7, got.Summary.Matched)
	assert.NotNil(t, got.FinishedAt)
}

func TestSQLite_FinishRun_NotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.FinishRun(context.Background(), "missing", model.RunCompleted, model.Summary{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_ListRuns_Filtered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	dry, err := s.CreateRun(ctx, model.ModeDryRun)
	require.NoError(t, err)
	_, err = s.CreateRun(ctx, model.ModeFull)
	require.NoError(t, err)
	require.NoError(t, s.FinishRun(ctx, dry.ID, model.RunCompleted, model.Summary{}))

	completed, err := s.ListRuns(ctx, RunFilter{Status: model.RunCompleted})
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, dry.ID, completed[0].ID)

	full, err := s.ListRuns(ctx, RunFilter{Mode: model.ModeFull})
	require.NoError(t, err)
	require.Len(t, full, 1)

	all, err := s.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func testRecord(leadID string, status model.LeadStatus) model.EnrichedRecord {
	return model.EnrichedRecord{
		Lead:   model.Lead{LeadID: leadID, FirmHint: "Smith & Jones LLP"},
		Status: status,
		Contacts: []model.Contact{
			{ID: "p_1", Title: "Partner", Email: "p1@smithjones.com", EmailUnlocked: true},
		},
	}
}

func TestSQLite_SaveRecord_IdempotentPerLead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, model.ModeFull)
	require.NoError(t, err)

	require.NoError(t, s.SaveRecord(ctx, run.ID, testRecord("lead_1", model.LeadPartial)))
	require.NoError(t, s.SaveRecord(ctx, run.ID, testRecord("lead_1", model.LeadEnriched)))

	recs, err := s.ListRecords(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, model.LeadEnriched, recs[0].Status)
	assert.Equal(t, "p_1", recs[0].Contacts[0].ID)
}

func TestSQLite_SaveRecords_Batch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, model.ModeFull)
	require.NoError(t, err)

	batch := []model.EnrichedRecord{
		testRecord("lead_1", model.LeadEnriched),
		testRecord("lead_2", model.LeadNoMatch),
	}
	require.NoError(t, s.SaveRecords(ctx, run.ID, batch))

	recs, err := s.ListRecords(ctx, run.ID)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func pendingRequest(key, runID, contactID string) model.PendingPhoneRequest {
	return model.PendingPhoneRequest{
		CorrelationKey: key,
		RunID:          runID,
		ContactID:      contactID,
		OrganizationID: "org_1",
		Status:         model.RequestPending,
		RequestedAt:    time.Now().UTC().Truncate(time.Second),
	}
}

func TestSQLite_PhoneRequestTransitions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	req := pendingRequest("key_1", "run_1", "p_1")
	require.NoError(t, s.UpsertPhoneRequest(ctx, req))

	got, err := s.GetPhoneRequest(ctx, "key_1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.RequestPending, got.Status)

	now := time.Now().UTC().Truncate(time.Second)
	req.Status = model.RequestFulfilled
	req.ResolvedAt = &now
	req.Phones = []model.PhoneNumber{{Number: "+1 555 0100", Type: "work", Confidence: 0.9}}
	require.NoError(t, s.UpsertPhoneRequest(ctx, req))

	got, err = s.GetPhoneRequest(ctx, "key_1")
	require.NoError(t, err)
	assert.Equal(t, model.RequestFulfilled, got.Status)
	require.Len(t, got.Phones, 1)
	assert.Equal(t, "+1 555 0100", got.Phones[0].Number)
}

func TestSQLite_PhoneRequest_TerminalRowsImmutable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	req := pendingRequest("key_1", "run_1", "p_1")
	now := time.Now().UTC().Truncate(time.Second)
	req.Status = model.RequestFulfilled
	req.ResolvedAt = &now
	req.Phones = []model.PhoneNumber{{Number: "+1 555 0100"}}
	require.NoError(t, s.UpsertPhoneRequest(ctx, req))

	// A late expiry sweep from another process cannot rewrite a fulfilled row.
	req.Status = model.RequestExpired
	req.Phones = nil
	require.NoError(t, s.UpsertPhoneRequest(ctx, req))

	got, err := s.GetPhoneRequest(ctx, "key_1")
	require.NoError(t, err)
	assert.Equal(t, model.RequestFulfilled, got.Status)
	assert.Len(t, got.Phones, 1)
}

func TestSQLite_GetPhoneRequest_Missing(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetPhoneRequest(context.Background(), "no-such-key")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_ListPhoneRequests(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertPhoneRequest(ctx, pendingRequest("key_1", "run_1", "p_1")))
	require.NoError(t, s.UpsertPhoneRequest(ctx, pendingRequest("key_2", "run_1", "p_2")))
	require.NoError(t, s.UpsertPhoneRequest(ctx, pendingRequest("key_3", "run_2", "p_3")))

	run1, err := s.ListPhoneRequests(ctx, "run_1", model.RequestPending)
	require.NoError(t, err)
	assert.Len(t, run1, 2)

	// Empty run ID spans runs; the webhook server uses this at startup.
	pending, err := s.ListPhoneRequests(ctx, "", model.RequestPending)
	require.NoError(t, err)
	assert.Len(t, pending, 3)
}

func TestSQLite_WebhookDeliveryLog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, d := range []WebhookDelivery{
		{CorrelationKey: "key_1", ContactID: "p_1", Outcome: "fulfilled", Payload: `{"id":"key_1"}`},
		{CorrelationKey: "key_x", Outcome: "orphan", Payload: `{"id":"key_x"}`},
	} {
		require.NoError(t, s.LogWebhookDelivery(ctx, d))
	}

	recent, err := s.RecentWebhookDeliveries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	for _, d := range recent {
		assert.NotEmpty(t, d.ID)
		assert.False(t, d.ReceivedAt.IsZero())
	}
}
