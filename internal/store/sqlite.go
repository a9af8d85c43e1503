package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/enrich-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It is the default
// driver: one file per deployment, good enough for the volumes a nightly
// enrichment run produces.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	mode        TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	summary     TEXT,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS enriched_records (
	run_id   TEXT NOT NULL REFERENCES runs(id),
	lead_id  TEXT NOT NULL,
	status   TEXT NOT NULL,
	record   TEXT NOT NULL,
	saved_at DATETIME NOT NULL,
	PRIMARY KEY (run_id, lead_id)
);

CREATE TABLE IF NOT EXISTS phone_requests (
	correlation_key TEXT PRIMARY KEY,
	run_id          TEXT NOT NULL,
	contact_id      TEXT NOT NULL,
	organization_id TEXT,
	status          TEXT NOT NULL,
	phones          TEXT,
	requested_at    DATETIME NOT NULL,
	resolved_at     DATETIME
);

CREATE TABLE IF NOT EXISTS webhook_deliveries (
	id              TEXT PRIMARY KEY,
	correlation_key TEXT,
	contact_id      TEXT,
	outcome         TEXT NOT NULL,
	payload         TEXT NOT NULL,
	received_at     DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_records_run ON enriched_records(run_id);
CREATE INDEX IF NOT EXISTS idx_phone_requests_run ON phone_requests(run_id);
CREATE INDEX IF NOT EXISTS idx_phone_requests_status ON phone_requests(status);
CREATE INDEX IF NOT EXISTS idx_webhook_deliveries_received ON webhook_deliveries(received_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, mode model.RunMode) (*model.Run, error) {
	run := &model.Run{
		ID:        uuid.New().String(),
		Mode:      mode,
		Status:    model.RunRunning,
		StartedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, mode, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, string(run.Mode), string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return run, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, summary model.Summary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal summary")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, summary = ?, finished_at = ? WHERE id = ?`,
		string(status), string(summaryJSON), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, mode, status, summary, started_at, finished_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, mode, status, summary, started_at, finished_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Mode != "" {
		query += ` AND mode = ?`
		args = append(args, string(filter.Mode))
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) SaveRecord(ctx context.Context, runID string, rec model.EnrichedRecord) error {
	recordJSON, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal record")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO enriched_records (run_id, lead_id, status, record, saved_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (run_id, lead_id) DO UPDATE SET
			status = excluded.status, record = excluded.record, saved_at = excluded.saved_at`,
		runID, rec.Lead.LeadID, string(rec.Status), string(recordJSON), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: save record for lead %s", rec.Lead.LeadID)
}

func (s *SQLiteStore) SaveRecords(ctx context.Context, runID string, recs []model.EnrichedRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save records")
	}
	defer tx.Rollback()

	for _, rec := range recs {
		recordJSON, err := json.Marshal(rec)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal record")
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO enriched_records (run_id, lead_id, status, record, saved_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (run_id, lead_id) DO UPDATE SET
				status = excluded.status, record = excluded.record, saved_at = excluded.saved_at`,
			runID, rec.Lead.LeadID, string(rec.Status), string(recordJSON), time.Now().UTC(),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: save record for lead %s", rec.Lead.LeadID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit save records")
}

func (s *SQLiteStore) ListRecords(ctx context.Context, runID string) ([]model.EnrichedRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT record FROM enriched_records WHERE run_id = ? ORDER BY lead_id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list records for run %s", runID)
	}
	defer rows.Close()

	var recs []model.EnrichedRecord
	for rows.Next() {
		var recordJSON string
		if err := rows.Scan(&recordJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		var rec model.EnrichedRecord
		if err := json.Unmarshal([]byte(recordJSON), &rec); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal record")
		}
		recs = append(recs, rec)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: list records iterate")
}

func (s *SQLiteStore) UpsertPhoneRequest(ctx context.Context, req model.PendingPhoneRequest) error {
	var phonesJSON sql.NullString
	if len(req.Phones) > 0 {
		b, err := json.Marshal(req.Phones)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal phones")
		}
		phonesJSON = sql.NullString{String: string(b), Valid: true}
	}

	// Terminal rows are immutable: once fulfilled or expired, a redelivered
	// webhook or late sweep cannot rewrite the outcome.
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO phone_requests
			(correlation_key, run_id, contact_id, organization_id, status, phones, requested_at, resolved_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (correlation_key) DO UPDATE SET
			status = excluded.status, phones = excluded.phones, resolved_at = excluded.resolved_at
		 WHERE phone_requests.status = 'pending'`,
		req.CorrelationKey, req.RunID, req.ContactID, req.OrganizationID,
		string(req.Status), phonesJSON, req.RequestedAt, req.ResolvedAt,
	)
	return eris.Wrapf(err, "sqlite: upsert phone request %s", req.CorrelationKey)
}

func (s *SQLiteStore) GetPhoneRequest(ctx context.Context, correlationKey string) (*model.PendingPhoneRequest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT correlation_key, run_id, contact_id, organization_id, status, phones, requested_at, resolved_at
		 FROM phone_requests WHERE correlation_key = ?`,
		correlationKey,
	)

	req, err := scanPhoneRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return req, err
}

func (s *SQLiteStore) ListPhoneRequests(ctx context.Context, runID string, status model.RequestStatus) ([]model.PendingPhoneRequest, error) {
	query := `SELECT correlation_key, run_id, contact_id, organization_id, status, phones, requested_at, resolved_at
		FROM phone_requests WHERE 1=1`
	var args []any

	if runID != "" {
		query += ` AND run_id = ?`
		args = append(args, runID)
	}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY requested_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list phone requests")
	}
	defer rows.Close()

	var reqs []model.PendingPhoneRequest
	for rows.Next() {
		req, err := scanPhoneRequest(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, *req)
	}
	return reqs, eris.Wrap(rows.Err(), "sqlite: list phone requests iterate")
}

func (s *SQLiteStore) LogWebhookDelivery(ctx context.Context, d WebhookDelivery) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.ReceivedAt.IsZero() {
		d.ReceivedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO webhook_deliveries (id, correlation_key, contact_id, outcome, payload, received_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		d.ID, d.CorrelationKey, d.ContactID, d.Outcome, d.Payload, d.ReceivedAt,
	)
	return eris.Wrap(err, "sqlite: log webhook delivery")
}

func (s *SQLiteStore) RecentWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, correlation_key, contact_id, outcome, payload, received_at
		 FROM webhook_deliveries ORDER BY received_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: recent webhook deliveries")
	}
	defer rows.Close()

	var out []WebhookDelivery
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.CorrelationKey, &d.ContactID, &d.Outcome, &d.Payload, &d.ReceivedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan webhook delivery")
		}
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: webhook deliveries iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var summaryJSON sql.NullString
	var finishedAt sql.NullTime

	err := row.Scan(&r.ID, &r.Mode, &r.Status, &summaryJSON, &r.StartedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if summaryJSON.Valid {
		r.Summary = &model.Summary{}
		if err := json.Unmarshal([]byte(summaryJSON.String), r.Summary); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal summary")
		}
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		r.FinishedAt = &t
	}
	return &r, nil
}

func scanPhoneRequest(row scannable) (*model.PendingPhoneRequest, error) {
	var req model.PendingPhoneRequest
	var phonesJSON sql.NullString
	var resolvedAt sql.NullTime

	err := row.Scan(&req.CorrelationKey, &req.RunID, &req.ContactID, &req.OrganizationID,
		&req.Status, &phonesJSON, &req.RequestedAt, &resolvedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan phone request")
	}

	if phonesJSON.Valid {
		if err := json.Unmarshal([]byte(phonesJSON.String), &req.Phones); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal phones")
		}
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		req.ResolvedAt = &t
	}
	return &req, nil
}
