package webhook

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/store"
)

// ErrNoPendingRequest is returned when a delivery matches no live request.
var ErrNoPendingRequest = eris.New("no pending request for delivery")

// StoreReceiver resolves deliveries directly against persisted requests. The
// standalone webhook server uses it so deliveries that arrive after the
// pipeline process exited still land.
type StoreReceiver struct {
	store store.Store
}

// NewStoreReceiver creates a receiver over the store.
func NewStoreReceiver(st store.Store) *StoreReceiver {
	return &StoreReceiver{store: st}
}

// Receive fulfils the pending request matching the payload. The store's
// conditional upsert keeps terminal rows immutable, so a redelivered payload
// cannot rewrite an already-fulfilled request.
func (r *StoreReceiver) Receive(ctx context.Context, p model.WebhookPayload) (string, error) {
	req, err := r.lookup(ctx, p)
	if err != nil {
		return "", err
	}
	if req == nil || req.Status.Terminal() {
		return "", eris.Wrapf(ErrNoPendingRequest, "key %q contact %q", p.CorrelationKey, p.ContactID)
	}

	now := time.Now().UTC()
	req.Status = model.RequestFulfilled
	req.ResolvedAt = &now
	req.Phones = p.Phones
	if err := r.store.UpsertPhoneRequest(ctx, *req); err != nil {
		return "", eris.Wrap(err, "persist fulfillment")
	}
	return req.ContactID, nil
}

func (r *StoreReceiver) lookup(ctx context.Context, p model.WebhookPayload) (*model.PendingPhoneRequest, error) {
	if p.CorrelationKey != "" {
		req, err := r.store.GetPhoneRequest(ctx, p.CorrelationKey)
		if err != nil {
			return nil, eris.Wrap(err, "lookup by key")
		}
		if req != nil {
			return req, nil
		}
	}
	if p.ContactID == "" {
		return nil, nil
	}

	pending, err := r.store.ListPhoneRequests(ctx, "", model.RequestPending)
	if err != nil {
		return nil, eris.Wrap(err, "lookup by contact")
	}
	for i := range pending {
		if pending[i].ContactID == p.ContactID {
			return &pending[i], nil
		}
	}
	return nil, nil
}
