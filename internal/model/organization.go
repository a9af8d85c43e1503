package model

// SearchStrategy tags the query-generation strategy that produced a SearchQuery.
type SearchStrategy string

const (
	StrategyExact      SearchStrategy = "exact"
	StrategyQuoted     SearchStrategy = "quoted"
	StrategyTokens     SearchStrategy = "tokens"
	StrategyNormalized SearchStrategy = "normalized"
	StrategyDomain     SearchStrategy = "domain"
	StrategyDomainRoot SearchStrategy = "domain_root"
)

// SearchQuery is one provider query generated for a lead. Ephemeral.
type SearchQuery struct {
	Strategy SearchStrategy `json:"strategy"`
	Query    string         `json:"query"`
}

// Organization is a candidate entity returned by the enrichment provider.
// Held only during scoring.
type Organization struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Domain      string   `json:"primary_domain,omitempty"`
	WebsiteURL  string   `json:"website_url,omitempty"`
	LinkedInURL string   `json:"linkedin_url,omitempty"`
	Phone       string   `json:"phone,omitempty"`
	Industries  []string `json:"industries,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
}

// ConfidenceTier is the acceptance bucket under which a match was accepted.
type ConfidenceTier string

const (
	// TierHighConfidence applies when no email domain was available to
	// verify against, so the bar is highest.
	TierHighConfidence ConfidenceTier = "high_confidence_unverifiable"
	// TierDomainValidated applies when the candidate's domain exactly
	// matches the lead's email domain.
	TierDomainValidated ConfidenceTier = "domain_validated"
	// TierStandard is the default acceptance bucket.
	TierStandard ConfidenceTier = "standard"
)

// MatchResult is the outcome of scoring one candidate set against a lead.
// At most one organization is selected; selection is deterministic for a
// given candidate set and policy.
type MatchResult struct {
	Organization *Organization  `json:"organization,omitempty"`
	Score        float64        `json:"score"`
	Tier         ConfidenceTier `json:"tier,omitempty"`

	// RunnerUpScore is the second-best composite, kept for provenance and
	// ambiguity diagnostics.
	RunnerUpScore float64 `json:"runner_up_score,omitempty"`

	// RejectedReason is set when no organization was selected.
	RejectedReason string `json:"rejected_reason,omitempty"`
}

// Accepted reports whether a candidate cleared its acceptance threshold.
func (m MatchResult) Accepted() bool {
	return m.Organization != nil
}
