package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrich-cli/internal/model"
)

func TestQueries_StrategyOrder(t *testing.T) {
	lead := model.Lead{
		FirmHint:      "Smith & Jones LLP",
		AttorneyEmail: "j.smith@smithjones.com",
	}

	qs := Queries(lead)
	require.NotEmpty(t, qs)

	assert.Equal(t, model.StrategyExact, qs[0].Strategy)
	assert.Equal(t, "Smith & Jones LLP", qs[0].Query)
	assert.Equal(t, model.StrategyQuoted, qs[1].Strategy)
	assert.Equal(t, `"Smith & Jones LLP"`, qs[1].Query)

	// Strategy order is fixed: exact, quoted, tokens, normalized, domain,
	// domain root.
	order := map[model.SearchStrategy]int{
		model.StrategyExact:      0,
		model.StrategyQuoted:     1,
		model.StrategyTokens:     2,
		model.StrategyNormalized: 3,
		model.StrategyDomain:     4,
		model.StrategyDomainRoot: 5,
	}
	last := -1
	for _, q := range qs {
		rank := order[q.Strategy]
		assert.GreaterOrEqual(t, rank, last, "strategy %s out of order", q.Strategy)
		last = rank
	}

	// Domain fallbacks present for a usable email domain.
	var strategies []model.SearchStrategy
	for _, q := range qs {
		strategies = append(strategies, q.Strategy)
	}
	assert.Contains(t, strategies, model.StrategyDomain)
	assert.Contains(t, strategies, model.StrategyTokens)
}

func TestQueries_Deterministic(t *testing.T) {
	lead := model.Lead{FirmHint: "Rotstein & Shiffman LLP", AttorneyEmail: "d@rotstein-sh.com"}
	assert.Equal(t, Queries(lead), Queries(lead))
}

func TestQueries_PublicDomainNeverSearched(t *testing.T) {
	lead := model.Lead{FirmHint: "Smith & Jones LLP", AttorneyEmail: "smith@gmail.com"}
	for _, q := range Queries(lead) {
		assert.NotEqual(t, model.StrategyDomain, q.Strategy)
		assert.NotEqual(t, model.StrategyDomainRoot, q.Strategy)
	}
}

func TestQueries_SingleSurnameEmitsNoTokenSearches(t *testing.T) {
	// A lone surname like "Rice" must never fan out into bare token
	// searches; those match far too many unrelated firms.
	lead := model.Lead{FirmHint: "Rice"}
	for _, q := range Queries(lead) {
		assert.NotEqual(t, model.StrategyTokens, q.Strategy)
	}
}

func TestQueries_NoHintNoDomain(t *testing.T) {
	assert.Empty(t, Queries(model.Lead{FirmHint: "N/A"}))
}

func TestQueries_DedupesVariants(t *testing.T) {
	lead := model.Lead{FirmHint: "Smith and Jones"}
	seen := map[string]bool{}
	for _, q := range Queries(lead) {
		assert.False(t, seen[q.Query], "duplicate query %q", q.Query)
		seen[q.Query] = true
	}
}
