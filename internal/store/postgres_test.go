package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrich-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_CreateRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO runs`).
		WithArgs(pgxmock.AnyArg(), "full", "running", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.CreateRun(context.Background(), model.ModeFull)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunRunning, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, mode, status, summary, started_at, finished_at FROM runs WHERE id = \$1`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get run")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FinishRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET status`).
		WithArgs("completed", pgxmock.AnyArg(), pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.FinishRun(context.Background(), "missing", model.RunCompleted, model.Summary{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveRecord_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO enriched_records .* ON CONFLICT`).
		WithArgs("run_1", "lead_1", "enriched", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	rec := model.EnrichedRecord{
		Lead:   model.Lead{LeadID: "lead_1"},
		Status: model.LeadEnriched,
	}
	require.NoError(t, s.SaveRecord(context.Background(), "run_1", rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveRecords_BulkUpsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_enriched_records"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_enriched_records"},
		[]string{"run_id", "lead_id", "status", "record", "saved_at"}).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "enriched_records" .* ON CONFLICT`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	recs := []model.EnrichedRecord{
		{Lead: model.Lead{LeadID: "lead_1"}, Status: model.LeadEnriched},
		{Lead: model.Lead{LeadID: "lead_2"}, Status: model.LeadNoMatch},
	}
	require.NoError(t, s.SaveRecords(context.Background(), "run_1", recs))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertPhoneRequest_GuardsTerminalRows(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO phone_requests .* WHERE phone_requests\.status = 'pending'`).
		WithArgs("key_1", "run_1", "p_1", "org_1", "pending",
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	req := model.PendingPhoneRequest{
		CorrelationKey: "key_1",
		RunID:          "run_1",
		ContactID:      "p_1",
		OrganizationID: "org_1",
		Status:         model.RequestPending,
		RequestedAt:    time.Now().UTC(),
	}
	require.NoError(t, s.UpsertPhoneRequest(context.Background(), req))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetPhoneRequest_Missing(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .* FROM phone_requests WHERE correlation_key = \$1`).
		WithArgs("no-such-key").
		WillReturnError(pgx.ErrNoRows)

	got, err := s.GetPhoneRequest(context.Background(), "no-such-key")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LogWebhookDelivery(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO webhook_deliveries`).
		WithArgs(pgxmock.AnyArg(), "key_1", "p_1", "fulfilled", `{"id":"key_1"}`, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.LogWebhookDelivery(context.Background(), WebhookDelivery{
		CorrelationKey: "key_1",
		ContactID:      "p_1",
		Outcome:        "fulfilled",
		Payload:        `{"id":"key_1"}`,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
