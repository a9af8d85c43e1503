// Package store persists runs, enriched records, pending phone requests and
// the webhook delivery log.
package store

import (
	"context"
	"time"

	"github.com/sells-group/enrich-cli/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Mode   model.RunMode   `json:"mode,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// WebhookDelivery is one inbound webhook call, kept for diagnostics. Outcome
// is fulfilled, orphan or invalid.
type WebhookDelivery struct {
	ID             string    `json:"id"`
	CorrelationKey string    `json:"correlation_key,omitempty"`
	ContactID      string    `json:"contact_id,omitempty"`
	Outcome        string    `json:"outcome"`
	Payload        string    `json:"payload"`
	ReceivedAt     time.Time `json:"received_at"`
}

// Store defines the persistence interface for the enrichment pipeline.
// Phone-request transitions are atomic per correlation key: a terminal row
// never changes, so redelivered webhooks cannot corrupt a fulfillment.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, mode model.RunMode) (*model.Run, error)
	FinishRun(ctx context.Context, runID string, status model.RunStatus, summary model.Summary) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Enriched records, idempotent per (run, lead)
	SaveRecord(ctx context.Context, runID string, rec model.EnrichedRecord) error
	SaveRecords(ctx context.Context, runID string, recs []model.EnrichedRecord) error
	ListRecords(ctx context.Context, runID string) ([]model.EnrichedRecord, error)

	// Pending phone requests, keyed by correlation key
	UpsertPhoneRequest(ctx context.Context, req model.PendingPhoneRequest) error
	GetPhoneRequest(ctx context.Context, correlationKey string) (*model.PendingPhoneRequest, error)
	ListPhoneRequests(ctx context.Context, runID string, status model.RequestStatus) ([]model.PendingPhoneRequest, error)

	// Webhook delivery log
	LogWebhookDelivery(ctx context.Context, d WebhookDelivery) error
	RecentWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
