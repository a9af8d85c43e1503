package contact

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/enrich-cli/internal/match"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/resilience"
)

// DefaultUnlockBudget caps accepted email reveals per organization. Reveals
// spend provider credits, so the cap is a hard cost control.
const DefaultUnlockBudget = 6

// Revealer issues a single email-reveal request for a contact and returns the
// contact with its email populated.
type Revealer interface {
	RevealEmail(ctx context.Context, c model.Contact) (model.Contact, error)
}

// UnlockConfig tunes the coordinator. Zero values take defaults.
type UnlockConfig struct {
	// Budget is the maximum accepted unlocks per organization.
	Budget int

	// MinInterval is the minimum spacing between reveal requests.
	MinInterval time.Duration

	// Backoff drives retries on rate-limited or transient reveal failures.
	Backoff resilience.Backoff
}

// Unlocker processes a prioritized contact list under the unlock budget.
type Unlocker struct {
	revealer Revealer
	limiter  *rate.Limiter
	backoff  resilience.Backoff
	budget   int
}

// NewUnlocker creates an unlock coordinator.
func NewUnlocker(r Revealer, cfg UnlockConfig) *Unlocker {
	if cfg.Budget <= 0 {
		cfg.Budget = DefaultUnlockBudget
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = time.Second
	}
	if cfg.Backoff.MaxAttempts == 0 {
		cfg.Backoff = resilience.DefaultBackoff()
	}
	return &Unlocker{
		revealer: r,
		limiter:  rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
		backoff:  cfg.Backoff,
		budget:   cfg.Budget,
	}
}

// Unlock reveals emails for the prioritized contacts in order and returns the
// accepted ones. A reveal is accepted only when the returned email's domain
// matches the organization's expected domain; a non-matching reveal spent a
// provider credit but does not consume a budget slot. Stops once the budget
// is exhausted. Individual reveal failures skip the contact rather than
// failing the lead; only context cancellation aborts.
func (u *Unlocker) Unlock(ctx context.Context, contacts []model.Contact, expectedDomain string) ([]model.Contact, error) {
	log := zap.L().With(zap.String("expected_domain", expectedDomain))

	accepted := make([]model.Contact, 0, u.budget)
	remaining := u.budget
	for _, c := range contacts {
		if remaining <= 0 {
			log.Info("unlock budget exhausted",
				zap.Int("accepted", len(accepted)),
				zap.Int("skipped", len(contacts)-len(accepted)))
			break
		}
		if err := u.limiter.Wait(ctx); err != nil {
			return accepted, err
		}

		revealed, err := resilience.DoVal(ctx, u.backoff, func(ctx context.Context) (model.Contact, error) {
			return u.revealer.RevealEmail(ctx, c)
		})
		if err != nil {
			if ctx.Err() != nil {
				return accepted, ctx.Err()
			}
			log.Warn("email reveal failed, skipping contact",
				zap.String("contact_id", c.ID),
				zap.String("title", c.Title),
				zap.Error(err))
			continue
		}

		if revealed.Email == "" {
			log.Debug("reveal returned no email", zap.String("contact_id", c.ID))
			continue
		}
		if !domainAcceptable(revealed.Email, expectedDomain) {
			log.Warn("revealed email rejected on domain mismatch",
				zap.String("contact_id", c.ID),
				zap.String("revealed_domain", model.DomainFromEmail(revealed.Email)))
			continue
		}

		revealed.EmailUnlocked = true
		accepted = append(accepted, revealed)
		remaining--
	}
	return accepted, nil
}

// domainAcceptable validates a revealed email against the matched firm's
// domain. Root-level agreement covers firms whose mail domain is an
// abbreviation of the registered one. With no expected domain there is
// nothing to validate against; the reveal stands on the match score alone.
func domainAcceptable(email, expectedDomain string) bool {
	if expectedDomain == "" {
		return true
	}
	d := model.DomainFromEmail(email)
	if d == "" {
		return false
	}
	if strings.EqualFold(d, expectedDomain) {
		return true
	}
	return match.RootsMatch(d, expectedDomain)
}
