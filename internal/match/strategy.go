package match

import (
	"strings"

	"github.com/sells-group/enrich-cli/internal/model"
)

// Queries generates the ordered sequence of provider queries for a lead.
// The order is fixed: exact name, quoted phrase, significant-token searches,
// normalized variants, then domain fallbacks. Generation is pure; the
// orchestrator stops consuming the slice once a query produces a confident
// match.
func Queries(lead model.Lead) []model.SearchQuery {
	var queries []model.SearchQuery
	seen := map[string]bool{}

	add := func(strategy model.SearchStrategy, q string) {
		q = strings.TrimSpace(q)
		if q == "" {
			return
		}
		key := strings.ToLower(q)
		if seen[key] {
			return
		}
		seen[key] = true
		queries = append(queries, model.SearchQuery{Strategy: strategy, Query: q})
	}

	hint := strings.TrimSpace(lead.FirmHint)
	if hint != "" && hint != "N/A" {
		add(model.StrategyExact, hint)
		add(model.StrategyQuoted, `"`+hint+`"`)

		// Individual significant words. Single surnames match far too many
		// unrelated firms, so token searches require at least two tokens in
		// the hint to be worth emitting at all.
		toks := SignificantTokens(hint)
		if len(toks) >= 2 {
			for _, t := range toks {
				add(model.StrategyTokens, t)
			}
		}

		for _, v := range normalizedVariants(hint) {
			add(model.StrategyNormalized, v)
		}
	}

	if d := lead.EmailDomain(); d != "" {
		add(model.StrategyDomain, d)
		if root := DomainRoot(d); root != "" && root != d {
			add(model.StrategyDomainRoot, root)
		}
	}

	return queries
}

// normalizedVariants produces cleaned spellings of the hint: legal
// boilerplate stripped, ampersand flipped both ways. Variants collapsing to
// a single word are dropped; they are covered by token searches and would
// otherwise be dangerously broad.
func normalizedVariants(hint string) []string {
	var out []string

	cleaned := CleanFirmName(hint)
	if cleaned != strings.ToLower(hint) && wordCount(cleaned) >= 2 {
		out = append(out, cleaned)
	}

	if strings.Contains(hint, "&") {
		v := strings.Join(strings.Fields(strings.ReplaceAll(hint, "&", " and ")), " ")
		if wordCount(v) >= 2 {
			out = append(out, v)
		}
	} else if strings.Contains(strings.ToLower(hint), " and ") {
		lower := strings.ToLower(hint)
		v := strings.Join(strings.Fields(strings.ReplaceAll(lower, " and ", " & ")), " ")
		if wordCount(v) >= 2 {
			out = append(out, v)
		}
	}

	return out
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
