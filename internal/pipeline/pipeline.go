// Package pipeline orchestrates lead enrichment: provider search, match
// scoring, contact selection, paid email unlocks and asynchronous phone
// correlation, with durable per-lead records.
package pipeline

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/enrich-cli/internal/contact"
	"github.com/sells-group/enrich-cli/internal/match"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/store"
	"github.com/sells-group/enrich-cli/internal/tracker"
)

const (
	// DefaultConcurrency bounds simultaneous in-flight leads. The provider
	// rate limiter serializes actual calls; this only caps queued work.
	DefaultConcurrency = 4

	// defaultMaxFallbacks caps how many lower-ranked candidates are tried
	// when the accepted organization has no listed people.
	defaultMaxFallbacks = 2
)

// Options tunes a pipeline run. Zero values take defaults.
type Options struct {
	Mode          model.RunMode
	Concurrency   int
	WebhookURL    string
	Titles        []string
	ContactTarget int
	Unlock        contact.UnlockConfig
	PhoneTimeout  time.Duration
	Policy        match.Policy
	MaxFallbacks  int

	// OnTracker hands the run's request tracker to the caller once the run
	// ID exists, so a webhook server can route deliveries into it.
	OnTracker func(*tracker.Tracker)
}

func (o Options) withDefaults() Options {
	if o.Mode == "" {
		o.Mode = model.ModeDryRun
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.ContactTarget <= 0 {
		o.ContactTarget = contact.DefaultTarget
	}
	if o.PhoneTimeout <= 0 {
		o.PhoneTimeout = tracker.DefaultTimeout
	}
	if o.Policy == (match.Policy{}) {
		o.Policy = match.DefaultPolicy()
	}
	if o.MaxFallbacks <= 0 {
		o.MaxFallbacks = defaultMaxFallbacks
	}
	return o
}

// Pipeline runs leads through enrichment.
type Pipeline struct {
	provider Provider
	store    store.Store
	scorer   *match.Scorer
	opts     Options
}

// New creates a pipeline.
func New(provider Provider, st store.Store, opts Options) *Pipeline {
	opts = opts.withDefaults()
	return &Pipeline{
		provider: provider,
		store:    st,
		scorer:   match.NewScorer(opts.Policy),
		opts:     opts,
	}
}

// Run enriches a batch of leads and persists the outcome. A per-lead failure
// is recorded on that lead's record; only store or context failures abort the
// run.
func (p *Pipeline) Run(ctx context.Context, leads []model.Lead) (*model.Run, error) {
	run, err := p.store.CreateRun(ctx, p.opts.Mode)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	log := zap.L().With(zap.String("run_id", run.ID), zap.String("mode", string(p.opts.Mode)))
	log.Info("starting enrichment run", zap.Int("leads", len(leads)))

	tr := tracker.New(run.ID, tracker.Options{
		Timeout: p.opts.PhoneTimeout,
		Mirror:  p.store,
	})
	if p.opts.OnTracker != nil {
		p.opts.OnTracker(tr)
	}

	records := make([]model.EnrichedRecord, len(leads))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)
	for i, lead := range leads {
		g.Go(func() error {
			records[i] = p.enrichLead(gCtx, lead, tr)
			return nil
		})
	}
	_ = g.Wait()

	if p.opts.Mode == model.ModeFull && tr.Pending() > 0 {
		log.Info("waiting for phone deliveries", zap.Int("pending", tr.Pending()))
		waitCtx, cancel := context.WithTimeout(ctx, p.opts.PhoneTimeout)
		err := tr.Wait(waitCtx)
		cancel()
		if err != nil {
			// Whatever the deadline left behind is expired, not abandoned.
			tr.Sweep(ctx, time.Now().Add(p.opts.PhoneTimeout+time.Second))
		}
	}
	attachPhones(records, tr.Results())
	if orphans := tr.Orphans(); len(orphans) > 0 {
		log.Warn("orphan webhook deliveries", zap.Int("count", len(orphans)))
	}

	run.Records = records
	summary := run.Summarize()
	run.Summary = &summary

	if err := p.store.SaveRecords(ctx, run.ID, records); err != nil {
		finishErr := p.store.FinishRun(ctx, run.ID, model.RunFailed, summary)
		if finishErr != nil {
			log.Error("finish run failed", zap.Error(finishErr))
		}
		return run, eris.Wrap(err, "pipeline: save records")
	}
	if err := p.store.FinishRun(ctx, run.ID, model.RunCompleted, summary); err != nil {
		return run, eris.Wrap(err, "pipeline: finish run")
	}
	run.Status = model.RunCompleted

	log.Info("enrichment run complete",
		zap.Int("leads", summary.Leads),
		zap.Int("matched", summary.Matched),
		zap.Int("no_match", summary.NoMatch),
		zap.Int("ambiguous", summary.Ambiguous),
		zap.Int("skipped", summary.Skipped),
		zap.Int("contacts", summary.Contacts),
		zap.Int("unlocked", summary.Unlocked),
		zap.Int("phones", summary.Phones))
	return run, nil
}

// enrichLead runs one lead end to end. It never returns an error; failures
// are captured on the record so one lead cannot abort the batch.
func (p *Pipeline) enrichLead(ctx context.Context, lead model.Lead, tr *tracker.Tracker) model.EnrichedRecord {
	rec := model.EnrichedRecord{Lead: lead}
	log := zap.L().With(zap.String("lead_id", lead.LeadID), zap.String("firm_hint", lead.FirmHint))

	if !lead.NeedsEnrichment {
		rec.Status = model.LeadSkipped
		rec.FailReason = lead.SkipReason
		return rec
	}
	if !lead.Searchable() {
		rec.Status = model.LeadSkipped
		rec.FailReason = "unsearchable"
		return rec
	}

	result, ranked, err := p.findMatch(ctx, lead, &rec.Provenance)
	if err != nil {
		rec.Status = model.LeadFailed
		rec.FailReason = err.Error()
		log.Warn("lead enrichment failed", zap.Error(err))
		return rec
	}
	rec.Match = result
	if !result.Accepted() {
		if result.RejectedReason == match.RejectAmbiguous {
			rec.Status = model.LeadAmbiguous
		} else {
			rec.Status = model.LeadNoMatch
		}
		rec.FailReason = result.RejectedReason
		return rec
	}
	rec.Provenance.MatchedAt = time.Now().UTC()
	org := *result.Organization
	log.Info("lead matched",
		zap.String("organization", org.Name),
		zap.Float64("score", result.Score),
		zap.String("tier", string(result.Tier)))

	people, err := p.searchPeopleWithFallback(ctx, org, ranked, &rec.Provenance)
	if err != nil {
		rec.Status = model.LeadFailed
		rec.FailReason = err.Error()
		return rec
	}
	prioritized := contact.Prioritize(people, p.opts.ContactTarget)

	if p.opts.Mode == model.ModeDryRun {
		rec.Contacts = prioritized
		if len(prioritized) > 0 {
			rec.Status = model.LeadEnriched
		} else {
			rec.Status = model.LeadPartial
			rec.FailReason = "no_contacts"
		}
		return rec
	}

	expectedDomain := org.Domain
	if expectedDomain == "" {
		expectedDomain = lead.EmailDomain()
	}
	unlocker := contact.NewUnlocker(p.provider, p.opts.Unlock)
	accepted, err := unlocker.Unlock(ctx, prioritized, expectedDomain)
	if err != nil {
		rec.Contacts = accepted
		rec.Status = model.LeadFailed
		rec.FailReason = err.Error()
		return rec
	}
	rec.Contacts = accepted

	if p.opts.WebhookURL != "" {
		for _, c := range accepted {
			p.submitPhoneRequest(ctx, tr, c, log)
		}
	}

	if len(accepted) > 0 {
		rec.Status = model.LeadEnriched
	} else {
		rec.Status = model.LeadPartial
		rec.FailReason = "no_unlocked_contacts"
	}
	return rec
}

// findMatch walks the query sequence in order and stops at the first accepted
// match. The scored-and-filtered candidates of the winning query are returned
// ranked for people fallback.
func (p *Pipeline) findMatch(ctx context.Context, lead model.Lead, prov *model.Provenance) (model.MatchResult, []model.Organization, error) {
	last := model.MatchResult{RejectedReason: match.RejectNoCandidates}
	var searchErr error

	for _, q := range match.Queries(lead) {
		if err := ctx.Err(); err != nil {
			return last, nil, err
		}

		orgs, err := p.provider.SearchOrganizations(ctx, q.Query)
		if err != nil {
			searchErr = err
			zap.L().Warn("organization search failed",
				zap.String("lead_id", lead.LeadID),
				zap.String("strategy", string(q.Strategy)),
				zap.Error(err))
			continue
		}
		searchErr = nil
		prov.QueriesTried++
		prov.CandidatesSeen += len(orgs)

		result := p.scorer.Score(lead, orgs)
		if result.Accepted() {
			prov.WinningStrategy = q.Strategy
			prov.WinningQuery = q.Query
			return result, p.rankCandidates(lead, orgs), nil
		}
		// A scored rejection is a more informative verdict than a later
		// query that simply found nothing.
		if result.RejectedReason != match.RejectNoCandidates ||
			last.RejectedReason == match.RejectNoCandidates {
			last = result
		}
	}

	if searchErr != nil && prov.QueriesTried == 0 {
		return last, nil, eris.Wrap(searchErr, "all searches failed")
	}
	return last, nil, nil
}

// searchPeopleWithFallback lists people at the matched organization; when the
// listing is empty, lower-ranked law-firm candidates are tried so a match
// with a stale provider org page still yields contacts.
func (p *Pipeline) searchPeopleWithFallback(ctx context.Context, org model.Organization, ranked []model.Organization, prov *model.Provenance) ([]model.Contact, error) {
	people, err := p.provider.SearchPeople(ctx, org.ID, p.opts.Titles)
	if err != nil {
		return nil, eris.Wrapf(err, "search people for %s", org.Name)
	}
	if len(people) > 0 {
		return people, nil
	}

	tried := 0
	for _, alt := range ranked {
		if alt.ID == org.ID {
			continue
		}
		if tried >= p.opts.MaxFallbacks {
			break
		}
		tried++

		people, err = p.provider.SearchPeople(ctx, alt.ID, p.opts.Titles)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		if len(people) > 0 {
			prov.OrgFallback = true
			zap.L().Info("organization fallback used",
				zap.String("matched_org", org.Name),
				zap.String("fallback_org", alt.Name))
			return people, nil
		}
	}
	return nil, nil
}

func (p *Pipeline) submitPhoneRequest(ctx context.Context, tr *tracker.Tracker, c model.Contact, log *zap.Logger) {
	key, err := tr.Submit(ctx, c)
	if err != nil {
		log.Warn("phone request rejected",
			zap.String("contact_id", c.ID),
			zap.Error(err))
		return
	}
	if err := p.provider.RequestPhone(ctx, c.ID, p.opts.WebhookURL+"?key="+key); err != nil {
		// The tracker entry stays pending and will expire on sweep.
		log.Warn("phone request submission failed",
			zap.String("contact_id", c.ID),
			zap.Error(err))
	}
}

// rankCandidates orders the law-firm candidates by composite score for
// fallback, best first, ties broken by ID for determinism.
func (p *Pipeline) rankCandidates(lead model.Lead, orgs []model.Organization) []model.Organization {
	firms := match.FilterLawFirms(orgs)
	sort.SliceStable(firms, func(i, j int) bool {
		si, sj := p.scorer.Composite(lead, firms[i]), p.scorer.Composite(lead, firms[j])
		if si != sj {
			return si > sj
		}
		return firms[i].ID < firms[j].ID
	})
	return firms
}

func attachPhones(records []model.EnrichedRecord, results map[string][]model.PhoneNumber) {
	if len(results) == 0 {
		return
	}
	for i := range records {
		for _, c := range records[i].Contacts {
			phones, ok := results[c.ID]
			if !ok {
				continue
			}
			if records[i].Phones == nil {
				records[i].Phones = map[string][]model.PhoneNumber{}
			}
			records[i].Phones[c.ID] = phones
		}
	}
}
