// Package webhook receives asynchronous phone-reveal deliveries from the
// provider. Deliveries are acknowledged immediately and correlated in the
// background, so provider redelivery never blocks and never double-applies.
package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/store"
)

// Receiver correlates one delivery with its pending request and returns the
// matched contact ID.
type Receiver interface {
	Receive(ctx context.Context, p model.WebhookPayload) (string, error)
}

const (
	// OutcomeFulfilled marks a delivery that resolved a pending request.
	OutcomeFulfilled = "fulfilled"
	// OutcomeOrphan marks a delivery with no live pending request.
	OutcomeOrphan = "orphan"
	// OutcomeInvalid marks a delivery whose body could not be parsed.
	OutcomeInvalid = "invalid"

	processTimeout = 30 * time.Second
)

// Server is the webhook HTTP surface.
type Server struct {
	mu        sync.RWMutex
	receiver  Receiver
	store     store.Store
	startedAt time.Time
	received  atomic.Int64
}

// NewServer creates a webhook server. The store is used for the delivery log
// and may not be nil; the receiver resolves deliveries against in-flight
// requests.
func NewServer(receiver Receiver, st store.Store) *Server {
	return &Server{
		receiver:  receiver,
		store:     st,
		startedAt: time.Now(),
	}
}

// SetReceiver swaps the delivery receiver. The enrichment command points the
// server at each run's live tracker.
func (s *Server) SetReceiver(r Receiver) {
	s.mu.Lock()
	s.receiver = r
	s.mu.Unlock()
}

func (s *Server) currentReceiver() Receiver {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.receiver
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/", s.handleIndex)
	r.Post("/apollo-webhook", s.handleDelivery)
	r.Get("/webhook-health", s.handleHealth)
	r.Get("/webhook-data", s.handleRecent)
	r.Post("/test-webhook", s.handleTest)
	return r
}

// delivery is the provider's webhook body: one or more people with revealed
// numbers.
type delivery struct {
	People []personPayload `json:"people"`
	Person *personPayload  `json:"person"`
}

type personPayload struct {
	ID           string         `json:"id"`
	PhoneNumbers []phonePayload `json:"phone_numbers"`
}

type phonePayload struct {
	RawNumber       string  `json:"raw_number"`
	SanitizedNumber string  `json:"sanitized_number"`
	Type            string  `json:"type_cd"`
	Confidence      float64 `json:"confidence"`
}

func (p phonePayload) toModel() model.PhoneNumber {
	number := p.SanitizedNumber
	if number == "" {
		number = p.RawNumber
	}
	return model.PhoneNumber{Number: number, Type: p.Type, Confidence: p.Confidence}
}

// handleDelivery acknowledges the provider first and correlates afterwards.
// The provider retries undelivered webhooks aggressively; holding the
// connection open during processing only invites duplicates.
func (s *Server) handleDelivery(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")

	var d delivery
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		zap.L().Warn("undecodable webhook delivery", zap.Error(err))
		s.logDelivery(r.Context(), store.WebhookDelivery{
			CorrelationKey: key,
			Outcome:        OutcomeInvalid,
		})
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"status": "error", "message": "invalid JSON body",
		})
		return
	}

	people := d.People
	if d.Person != nil {
		people = append(people, *d.Person)
	}
	s.received.Add(1)

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "success", "message": "Data received",
	})

	go s.process(key, people)
}

func (s *Server) process(key string, people []personPayload) {
	ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
	defer cancel()

	for _, p := range people {
		phones := make([]model.PhoneNumber, 0, len(p.PhoneNumbers))
		for _, ph := range p.PhoneNumbers {
			phones = append(phones, ph.toModel())
		}

		payload := model.WebhookPayload{
			ContactID:  p.ID,
			Phones:     phones,
			ReceivedAt: time.Now().UTC(),
		}
		// The correlation key rides on the URL and is unambiguous only for
		// single-person deliveries; batches fall back to contact identity.
		if len(people) == 1 {
			payload.CorrelationKey = key
		}

		raw, _ := json.Marshal(payload)
		entry := store.WebhookDelivery{
			CorrelationKey: payload.CorrelationKey,
			ContactID:      p.ID,
			Outcome:        OutcomeFulfilled,
			Payload:        string(raw),
		}

		contactID, err := s.currentReceiver().Receive(ctx, payload)
		if err != nil {
			entry.Outcome = OutcomeOrphan
			zap.L().Warn("unmatched webhook delivery",
				zap.String("correlation_key", payload.CorrelationKey),
				zap.String("contact_id", p.ID),
				zap.Error(err))
		} else {
			entry.ContactID = contactID
			zap.L().Info("webhook delivery fulfilled",
				zap.String("contact_id", contactID),
				zap.Int("phones", len(phones)))
		}
		s.logDelivery(ctx, entry)
	}
}

func (s *Server) logDelivery(ctx context.Context, d store.WebhookDelivery) {
	if err := s.store.LogWebhookDelivery(ctx, d); err != nil {
		zap.L().Error("webhook delivery log write failed", zap.Error(err))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":             "healthy",
		"uptime_seconds":     int(time.Since(s.startedAt).Seconds()),
		"deliveries_handled": s.received.Load(),
	})
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			limit = n
		}
	}

	recent, err := s.store.RecentWebhookDeliveries(r.Context(), limit)
	if err != nil {
		zap.L().Error("webhook delivery log read failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"status": "error", "message": "delivery log unavailable",
		})
		return
	}
	writeJSON(w, http.StatusOK, recent)
}

// handleTest lets an operator verify end-to-end reachability before a run.
func (s *Server) handleTest(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"status": "error", "message": "invalid JSON body",
		})
		return
	}
	zap.L().Info("test webhook received", zap.Int("fields", len(body)))
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "success",
		"received": body,
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "enrich-cli webhook server",
		"endpoints": map[string]string{
			"webhook": "POST /apollo-webhook",
			"health":  "GET /webhook-health",
			"data":    "GET /webhook-data",
			"test":    "POST /test-webhook",
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("response encode failed", zap.Error(err))
	}
}
