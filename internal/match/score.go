package match

import (
	"sort"
	"strings"

	"github.com/sells-group/enrich-cli/internal/model"
)

// Rejection reasons recorded on MatchResult when no organization is selected.
const (
	RejectNoCandidates   = "no_candidates"
	RejectNotLawFirm     = "industry_rejected"
	RejectBelowThreshold = "score_below_threshold"
	RejectAmbiguous      = "ambiguous"
)

// foreignTLDs mark registrable domains that are almost certainly not the US
// firm being searched for.
var foreignTLDs = []string{".co.uk", ".ie", ".com.au", ".com.br", ".ca"}

// Scorer evaluates candidate organizations against a lead under a policy.
// Scoring is pure: identical inputs always produce identical results.
type Scorer struct {
	policy Policy
}

// NewScorer creates a scorer with the given policy.
func NewScorer(policy Policy) *Scorer {
	return &Scorer{policy: policy}
}

// Score filters the candidates by industry, scores the survivors and selects
// at most one winner according to the acceptance tiers. A top-two gap below
// the ambiguity margin rejects the match outright: a false positive writes
// bad contacts into the CRM, a miss only costs recall.
func (s *Scorer) Score(lead model.Lead, candidates []model.Organization) model.MatchResult {
	if len(candidates) == 0 {
		return model.MatchResult{RejectedReason: RejectNoCandidates}
	}

	pool := FilterLawFirms(candidates)
	if len(pool) == 0 {
		return model.MatchResult{RejectedReason: RejectNotLawFirm}
	}

	type scored struct {
		org   model.Organization
		score float64
	}
	ranked := make([]scored, 0, len(pool))
	for _, org := range pool {
		ranked = append(ranked, scored{org: org, score: s.Composite(lead, org)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].org.ID < ranked[j].org.ID
	})

	top := ranked[0]
	topTier, topThreshold := s.tierFor(lead, top.org)

	result := model.MatchResult{Score: top.score}
	if len(ranked) > 1 {
		result.RunnerUpScore = ranked[1].score
	}

	if top.score < topThreshold {
		result.RejectedReason = RejectBelowThreshold
		return result
	}

	// Ambiguity: if the runner-up also clears its own threshold and sits
	// within the margin, refuse to guess.
	if len(ranked) > 1 {
		runner := ranked[1]
		_, runnerThreshold := s.tierFor(lead, runner.org)
		if runner.score >= runnerThreshold && top.score-runner.score < s.policy.AmbiguityMargin {
			result.RejectedReason = RejectAmbiguous
			return result
		}
	}

	org := top.org
	result.Organization = &org
	result.Tier = topTier
	return result
}

// Composite computes the weighted match score for a single candidate.
func (s *Scorer) Composite(lead model.Lead, org model.Organization) float64 {
	sim := Similarity(lead.FirmHint, org.Name)
	cov := tokenCoverage(lead.FirmHint, org.Name)
	bonus := s.bonusFactors(lead, org)

	score := s.policy.NameWeight*sim + s.policy.CoverageWeight*cov + s.policy.BonusWeight*bonus

	if hasForeignTLD(org.Domain) {
		score -= s.policy.ForeignTLDPenalty
	}

	return clamp01(score)
}

// tierFor returns the confidence tier a candidate would be accepted under
// and the threshold it must clear.
func (s *Scorer) tierFor(lead model.Lead, org model.Organization) (model.ConfidenceTier, float64) {
	emailDomain := lead.EmailDomain()
	if emailDomain == "" {
		return model.TierHighConfidence, s.policy.HighConfidenceThreshold
	}
	if DomainsMatch(emailDomain, org.Domain) {
		return model.TierDomainValidated, s.policy.DomainValidatedThreshold
	}
	return model.TierStandard, s.policy.StandardThreshold
}

// DomainsMatch reports an exact (case-insensitive) domain match.
func DomainsMatch(a, b string) bool {
	return a != "" && b != "" && strings.EqualFold(a, b)
}

// RootsMatch reports whether two domains share a registrable root, covering
// abbreviated registrations like rotstein-sh.com vs rotstein-shiffman.com.
func RootsMatch(a, b string) bool {
	ra, rb := DomainRoot(a), DomainRoot(b)
	if ra == "" || rb == "" {
		return false
	}
	if ra == rb {
		return true
	}
	if len(ra) >= 4 && len(rb) >= 4 && (strings.Contains(ra, rb) || strings.Contains(rb, ra)) {
		return true
	}
	return false
}

// tokenCoverage is the fraction of the hint's significant tokens present in
// the candidate name. Guards against a lone surname matching hundreds of
// unrelated firms.
func tokenCoverage(hint, candidate string) float64 {
	hintToks := SignificantTokens(hint)
	if len(hintToks) == 0 {
		return 0
	}
	candSet := map[string]bool{}
	for _, t := range strings.Fields(CleanFirmName(candidate)) {
		candSet[t] = true
	}
	covered := 0
	for _, t := range hintToks {
		if candSet[t] {
			covered++
		}
	}
	return float64(covered) / float64(len(hintToks))
}

// bonusFactors returns the additive bonus on a 0..1 scale (capped) before
// the bonus weight is applied.
func (s *Scorer) bonusFactors(lead model.Lead, org model.Organization) float64 {
	var bonus float64

	emailDomain := lead.EmailDomain()
	switch {
	case DomainsMatch(emailDomain, org.Domain):
		bonus += 1.0
	case emailDomain != "" && RootsMatch(emailDomain, org.Domain):
		bonus += 0.6
	case org.Domain != "":
		bonus += 0.4
	}

	if org.LinkedInURL != "" {
		bonus += 0.2
	}

	if ac := Acronym(lead.FirmHint); len(ac) >= 2 && strings.EqualFold(ac, strings.TrimSpace(org.Name)) {
		bonus += 0.6
	}

	return clamp01(bonus)
}

func hasForeignTLD(domain string) bool {
	d := strings.ToLower(domain)
	for _, tld := range foreignTLDs {
		if strings.HasSuffix(d, tld) {
			return true
		}
	}
	return false
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
