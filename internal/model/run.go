package model

import "time"

// RunMode distinguishes validation runs from credit-consuming runs.
type RunMode string

const (
	// ModeDryRun performs search, scoring and prioritization but stops
	// before any paid unlock or phone request.
	ModeDryRun RunMode = "dry_run"
	// ModeFull executes unlocks and phone requests and waits for
	// asynchronous fulfillment.
	ModeFull RunMode = "full"
)

// RunStatus is the lifecycle state of a pipeline run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// LeadStatus summarizes the per-lead outcome. Per-lead failures never abort
// a run; they are recorded here instead.
type LeadStatus string

const (
	LeadEnriched  LeadStatus = "enriched"
	LeadPartial   LeadStatus = "partial"
	LeadNoMatch   LeadStatus = "no_match"
	LeadAmbiguous LeadStatus = "ambiguous"
	LeadSkipped   LeadStatus = "skipped"
	LeadFailed    LeadStatus = "failed"
)

// Provenance records how a match was made, for auditability.
type Provenance struct {
	WinningStrategy SearchStrategy `json:"winning_strategy,omitempty"`
	WinningQuery    string         `json:"winning_query,omitempty"`
	QueriesTried    int            `json:"queries_tried"`
	CandidatesSeen  int            `json:"candidates_seen"`
	MatchedAt       time.Time      `json:"matched_at,omitempty"`
	// OrgFallback is set when the accepted organization had no people and a
	// lower-ranked candidate was used for contacts instead.
	OrgFallback bool `json:"org_fallback,omitempty"`
}

// EnrichedRecord is the durable per-lead output of a run.
type EnrichedRecord struct {
	Lead       Lead        `json:"lead"`
	Status     LeadStatus  `json:"status"`
	FailReason string      `json:"fail_reason,omitempty"`
	Match      MatchResult `json:"match"`
	Contacts   []Contact   `json:"contacts,omitempty"`

	// Phones maps contact ID to resolved numbers. A contact present in
	// Contacts but absent here had its request expire or was never
	// submitted.
	Phones map[string][]PhoneNumber `json:"phones,omitempty"`

	Provenance Provenance `json:"provenance"`
}

// Run is one execution of the pipeline over a batch of leads.
type Run struct {
	ID         string           `json:"id"`
	Mode       RunMode          `json:"mode"`
	Status     RunStatus        `json:"status"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
	Summary    *Summary         `json:"summary,omitempty"`
	Records    []EnrichedRecord `json:"records,omitempty"`
}

// Summary aggregates run outcomes for reporting.
type Summary struct {
	Leads     int `json:"leads"`
	Matched   int `json:"matched"`
	Ambiguous int `json:"ambiguous"`
	NoMatch   int `json:"no_match"`
	Skipped   int `json:"skipped"`
	Contacts  int `json:"contacts"`
	Unlocked  int `json:"unlocked"`
	Phones    int `json:"phones"`
}

// Summarize tallies a run's records.
func (r *Run) Summarize() Summary {
	var s Summary
	for _, rec := range r.Records {
		s.Leads++
		switch rec.Status {
		case LeadEnriched, LeadPartial:
			s.Matched++
		case LeadAmbiguous:
			s.Ambiguous++
		case LeadNoMatch:
			s.NoMatch++
		case LeadSkipped:
			s.Skipped++
		}
		s.Contacts += len(rec.Contacts)
		for _, c := range rec.Contacts {
			if c.EmailUnlocked {
				s.Unlocked++
			}
		}
		for _, phones := range rec.Phones {
			if len(phones) > 0 {
				s.Phones++
			}
		}
	}
	return s
}
