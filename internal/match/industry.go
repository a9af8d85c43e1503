package match

import (
	"strings"

	"github.com/sells-group/enrich-cli/internal/model"
)

// industryKeywords identify a legal-services organization from provider
// industry tags or keyword lists.
var industryKeywords = []string{
	"law", "legal", "attorney", "counsel", "litigation", "paralegal",
}

// nameHints identify a law firm from its display name or website when the
// provider returned no industry data.
var nameHints = []string{
	"law", "lawyer", "lawyers", "attorney", "attorneys", "legal",
	"counsel", "llp", "law office", "law offices",
}

// legalIndustryCodes are provider industry identifiers that mean
// legal services regardless of keyword text.
var legalIndustryCodes = map[string]bool{
	"legal services": true,
	"law practice":   true,
	"legal":          true,
}

// IsLawFirm reports whether the organization looks like a legal-services
// entity. Checked before scoring; non-matching candidates never enter the
// scored pool.
func IsLawFirm(org model.Organization) bool {
	for _, ind := range org.Industries {
		low := strings.ToLower(ind)
		if legalIndustryCodes[low] {
			return true
		}
		if containsAny(low, industryKeywords) {
			return true
		}
	}
	for _, kw := range org.Keywords {
		if containsAny(strings.ToLower(kw), industryKeywords) {
			return true
		}
	}

	// Fall back to name and website hints; industry data is often missing.
	if containsAny(strings.ToLower(org.Name), nameHints) {
		return true
	}
	return containsAny(strings.ToLower(org.WebsiteURL), []string{"law", "legal", "attorney"})
}

// FilterLawFirms returns the candidates that pass the industry check.
func FilterLawFirms(orgs []model.Organization) []model.Organization {
	var out []model.Organization
	for _, o := range orgs {
		if IsLawFirm(o) {
			out = append(out, o)
		}
	}
	return out
}

func containsAny(s string, terms []string) bool {
	if s == "" {
		return false
	}
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
