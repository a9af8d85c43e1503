package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-cli/internal/db"
	"github.com/sells-group/enrich-cli/internal/model"
)

// PostgresStore implements Store using pgxpool. Used when the webhook server
// and enrichment runs live on separate hosts and need shared request state.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	mode        TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	summary     JSONB,
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS enriched_records (
	run_id   TEXT NOT NULL REFERENCES runs(id),
	lead_id  TEXT NOT NULL,
	status   TEXT NOT NULL,
	record   JSONB NOT NULL,
	saved_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (run_id, lead_id)
);

CREATE TABLE IF NOT EXISTS phone_requests (
	correlation_key TEXT PRIMARY KEY,
	run_id          TEXT NOT NULL,
	contact_id      TEXT NOT NULL,
	organization_id TEXT,
	status          TEXT NOT NULL,
	phones          JSONB,
	requested_at    TIMESTAMPTZ NOT NULL,
	resolved_at     TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS webhook_deliveries (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	correlation_key TEXT,
	contact_id      TEXT,
	outcome         TEXT NOT NULL,
	payload         JSONB NOT NULL,
	received_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_records_run ON enriched_records(run_id);
CREATE INDEX IF NOT EXISTS idx_phone_requests_run ON phone_requests(run_id);
CREATE INDEX IF NOT EXISTS idx_phone_requests_status ON phone_requests(status);
CREATE INDEX IF NOT EXISTS idx_webhook_deliveries_received ON webhook_deliveries(received_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, mode model.RunMode) (*model.Run, error) {
	run := &model.Run{
		ID:        uuid.New().String(),
		Mode:      mode,
		Status:    model.RunRunning,
		StartedAt: time.Now().UTC(),
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, mode, status, started_at) VALUES ($1, $2, $3, $4)`,
		run.ID, string(run.Mode), string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return run, nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, summary model.Summary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal summary")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, summary = $2, finished_at = $3 WHERE id = $4`,
		string(status), summaryJSON, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var r model.Run
	var summaryJSON []byte
	var finishedAt *time.Time

	err := s.pool.QueryRow(ctx,
		`SELECT id, mode, status, summary, started_at, finished_at FROM runs WHERE id = $1`,
		runID,
	).Scan(&r.ID, &r.Mode, &r.Status, &summaryJSON, &r.StartedAt, &finishedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}

	if len(summaryJSON) > 0 {
		r.Summary = &model.Summary{}
		if err := json.Unmarshal(summaryJSON, r.Summary); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal summary")
		}
	}
	r.FinishedAt = finishedAt
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, mode, status, summary, started_at, finished_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $1`
	}
	if filter.Mode != "" {
		args = append(args, string(filter.Mode))
		query += placeholderClause(` AND mode = `, len(args))
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += placeholderClause(` LIMIT `, len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += placeholderClause(` OFFSET `, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var summaryJSON []byte
		var finishedAt *time.Time
		if err := rows.Scan(&r.ID, &r.Mode, &r.Status, &summaryJSON, &r.StartedAt, &finishedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if len(summaryJSON) > 0 {
			r.Summary = &model.Summary{}
			if err := json.Unmarshal(summaryJSON, r.Summary); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal summary")
			}
		}
		r.FinishedAt = finishedAt
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) SaveRecord(ctx context.Context, runID string, rec model.EnrichedRecord) error {
	recordJSON, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal record")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO enriched_records (run_id, lead_id, status, record, saved_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (run_id, lead_id) DO UPDATE SET
			status = EXCLUDED.status, record = EXCLUDED.record, saved_at = EXCLUDED.saved_at`,
		runID, rec.Lead.LeadID, string(rec.Status), recordJSON, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: save record for lead %s", rec.Lead.LeadID)
}

// SaveRecords bulk-upserts a run's records through a temp table; rerunning a
// lead overwrites its previous record.
func (s *PostgresStore) SaveRecords(ctx context.Context, runID string, recs []model.EnrichedRecord) error {
	if len(recs) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(recs))
	for _, rec := range recs {
		recordJSON, err := json.Marshal(rec)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal record")
		}
		rows = append(rows, []any{runID, rec.Lead.LeadID, string(rec.Status), recordJSON, now})
	}

	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "enriched_records",
		Columns:      []string{"run_id", "lead_id", "status", "record", "saved_at"},
		ConflictKeys: []string{"run_id", "lead_id"},
	}, rows)
	return eris.Wrapf(err, "postgres: save records for run %s", runID)
}

func (s *PostgresStore) ListRecords(ctx context.Context, runID string) ([]model.EnrichedRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT record FROM enriched_records WHERE run_id = $1 ORDER BY lead_id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list records for run %s", runID)
	}
	defer rows.Close()

	var recs []model.EnrichedRecord
	for rows.Next() {
		var recordJSON []byte
		if err := rows.Scan(&recordJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		var rec model.EnrichedRecord
		if err := json.Unmarshal(recordJSON, &rec); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal record")
		}
		recs = append(recs, rec)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: list records iterate")
}

func (s *PostgresStore) UpsertPhoneRequest(ctx context.Context, req model.PendingPhoneRequest) error {
	var phonesJSON []byte
	if len(req.Phones) > 0 {
		var err error
		phonesJSON, err = json.Marshal(req.Phones)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal phones")
		}
	}

	// Terminal rows are immutable; see the sqlite driver.
	_, err := s.pool.Exec(ctx,
		`INSERT INTO phone_requests
			(correlation_key, run_id, contact_id, organization_id, status, phones, requested_at, resolved_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (correlation_key) DO UPDATE SET
			status = EXCLUDED.status, phones = EXCLUDED.phones, resolved_at = EXCLUDED.resolved_at
		 WHERE phone_requests.status = 'pending'`,
		req.CorrelationKey, req.RunID, req.ContactID, req.OrganizationID,
		string(req.Status), phonesJSON, req.RequestedAt, req.ResolvedAt,
	)
	return eris.Wrapf(err, "postgres: upsert phone request %s", req.CorrelationKey)
}

func (s *PostgresStore) GetPhoneRequest(ctx context.Context, correlationKey string) (*model.PendingPhoneRequest, error) {
	var req model.PendingPhoneRequest
	var phonesJSON []byte
	var resolvedAt *time.Time

	err := s.pool.QueryRow(ctx,
		`SELECT correlation_key, run_id, contact_id, organization_id, status, phones, requested_at, resolved_at
		 FROM phone_requests WHERE correlation_key = $1`,
		correlationKey,
	).Scan(&req.CorrelationKey, &req.RunID, &req.ContactID, &req.OrganizationID,
		&req.Status, &phonesJSON, &req.RequestedAt, &resolvedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get phone request %s", correlationKey)
	}

	if len(phonesJSON) > 0 {
		if err := json.Unmarshal(phonesJSON, &req.Phones); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal phones")
		}
	}
	req.ResolvedAt = resolvedAt
	return &req, nil
}

func (s *PostgresStore) ListPhoneRequests(ctx context.Context, runID string, status model.RequestStatus) ([]model.PendingPhoneRequest, error) {
	query := `SELECT correlation_key, run_id, contact_id, organization_id, status, phones, requested_at, resolved_at
		FROM phone_requests WHERE 1=1`
	var args []any

	if runID != "" {
		args = append(args, runID)
		query += placeholderClause(` AND run_id = `, len(args))
	}
	if status != "" {
		args = append(args, string(status))
		query += placeholderClause(` AND status = `, len(args))
	}
	query += ` ORDER BY requested_at`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list phone requests")
	}
	defer rows.Close()

	var reqs []model.PendingPhoneRequest
	for rows.Next() {
		var req model.PendingPhoneRequest
		var phonesJSON []byte
		var resolvedAt *time.Time
		if err := rows.Scan(&req.CorrelationKey, &req.RunID, &req.ContactID, &req.OrganizationID,
			&req.Status, &phonesJSON, &req.RequestedAt, &resolvedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan phone request")
		}
		if len(phonesJSON) > 0 {
			if err := json.Unmarshal(phonesJSON, &req.Phones); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal phones")
			}
		}
		req.ResolvedAt = resolvedAt
		reqs = append(reqs, req)
	}
	return reqs, eris.Wrap(rows.Err(), "postgres: list phone requests iterate")
}

func (s *PostgresStore) LogWebhookDelivery(ctx context.Context, d WebhookDelivery) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.ReceivedAt.IsZero() {
		d.ReceivedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO webhook_deliveries (id, correlation_key, contact_id, outcome, payload, received_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		d.ID, d.CorrelationKey, d.ContactID, d.Outcome, d.Payload, d.ReceivedAt,
	)
	return eris.Wrap(err, "postgres: log webhook delivery")
}

func (s *PostgresStore) RecentWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, correlation_key, contact_id, outcome, payload, received_at
		 FROM webhook_deliveries ORDER BY received_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: recent webhook deliveries")
	}
	defer rows.Close()

	var out []WebhookDelivery
	for rows.Next() {
		var d WebhookDelivery
		var payload []byte
		if err := rows.Scan(&d.ID, &d.CorrelationKey, &d.ContactID, &d.Outcome, &payload, &d.ReceivedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan webhook delivery")
		}
		d.Payload = string(payload)
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "postgres: webhook deliveries iterate")
}

// placeholderClause appends the next positional placeholder to a clause.
func placeholderClause(clause string, n int) string {
	return clause + "$" + strconv.Itoa(n)
}
