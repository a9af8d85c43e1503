// Package contact ranks a matched firm's people and coordinates
// credit-conscious email unlocks.
package contact

import (
	"strings"

	"github.com/sells-group/enrich-cli/internal/model"
)

// DefaultTarget is how many contacts a run tries to carry per firm.
const DefaultTarget = 6

// Tier keyword enumerations, checked in order. "of counsel" must be tested
// before the bare "counsel" of the attorney tier.
var (
	partnerTitles   = []string{"managing partner", "senior partner", "partner"}
	associateTitles = []string{"senior associate", "of counsel", "associate"}
	attorneyTitles  = []string{"attorney", "lawyer", "counsel"}
	supportTitles   = []string{"paralegal", "legal assistant", "legal secretary", "law clerk", "legal"}
)

// Classify maps a job title onto a seniority tier. Titles with no legal
// keyword at all are excluded from ranking entirely.
func Classify(title string) model.SeniorityTier {
	t := strings.ToLower(title)
	switch {
	case containsAny(t, partnerTitles):
		return model.TierPartner
	case containsAny(t, associateTitles):
		return model.TierAssociate
	case containsAny(t, attorneyTitles):
		return model.TierAttorney
	case containsAny(t, supportTitles):
		return model.TierSupport
	default:
		return model.TierExcluded
	}
}

// Prioritize returns an ordered, de-duplicated subset of at most target
// contacts. Buckets fill in tier order; inside a tier selection round-robins
// across distinct titles so six partners with the same title don't crowd out
// a managing partner listed later. Fewer than target available returns all
// of them.
func Prioritize(contacts []model.Contact, target int) []model.Contact {
	if target <= 0 {
		target = DefaultTarget
	}

	seen := make(map[string]bool, len(contacts))
	buckets := map[model.SeniorityTier][]model.Contact{}
	for _, c := range contacts {
		if c.ID == "" || seen[c.ID] {
			continue
		}
		tier := Classify(c.Title)
		if tier == model.TierExcluded {
			continue
		}
		seen[c.ID] = true
		c.Tier = tier
		buckets[tier] = append(buckets[tier], c)
	}

	picked := make([]model.Contact, 0, target)
	for _, tier := range []model.SeniorityTier{
		model.TierPartner, model.TierAssociate, model.TierAttorney, model.TierSupport,
	} {
		if len(picked) >= target {
			break
		}
		picked = append(picked, roundRobin(buckets[tier], target-len(picked))...)
	}
	return picked
}

// roundRobin takes up to n contacts from the bucket, cycling across distinct
// titles. Input order is preserved within each title group and group order is
// fixed by first appearance, so the result is deterministic.
func roundRobin(bucket []model.Contact, n int) []model.Contact {
	if len(bucket) <= n {
		return bucket
	}

	var order []string
	groups := map[string][]model.Contact{}
	for _, c := range bucket {
		key := strings.ToLower(strings.TrimSpace(c.Title))
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], c)
	}

	out := make([]model.Contact, 0, n)
	for len(out) < n {
		took := false
		for _, key := range order {
			if len(out) >= n {
				break
			}
			if g := groups[key]; len(g) > 0 {
				out = append(out, g[0])
				groups[key] = g[1:]
				took = true
			}
		}
		if !took {
			break
		}
	}
	return out
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
