package match

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Policy holds the tunable matching parameters. The thresholds are
// empirically tuned per dataset, so they live in configuration rather than
// code.
type Policy struct {
	// Composite score weights. Should sum to 1.0.
	NameWeight     float64 `yaml:"name_weight"`
	CoverageWeight float64 `yaml:"coverage_weight"`
	BonusWeight    float64 `yaml:"bonus_weight"`

	// Acceptance thresholds per confidence tier.
	HighConfidenceThreshold  float64 `yaml:"high_confidence_threshold"`
	DomainValidatedThreshold float64 `yaml:"domain_validated_threshold"`
	StandardThreshold        float64 `yaml:"standard_threshold"`

	// AmbiguityMargin is the minimum top-two score gap; anything closer is
	// rejected as ambiguous rather than guessed.
	AmbiguityMargin float64 `yaml:"ambiguity_margin"`

	// ForeignTLDPenalty is subtracted for clearly non-US registrable
	// domains (.co.uk, .ie, ...).
	ForeignTLDPenalty float64 `yaml:"foreign_tld_penalty"`
}

// DefaultPolicy returns the production-tuned defaults.
func DefaultPolicy() Policy {
	return Policy{
		NameWeight:               0.6,
		CoverageWeight:           0.3,
		BonusWeight:              0.1,
		HighConfidenceThreshold:  0.95,
		DomainValidatedThreshold: 0.60,
		StandardThreshold:        0.75,
		AmbiguityMargin:          0.05,
		ForeignTLDPenalty:        0.2,
	}
}

// LoadPolicy reads a policy overlay from a YAML file. Zero-valued fields
// fall back to the defaults, so a partial file only overrides what it names.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return p, eris.Wrapf(err, "match: read policy %s", path)
	}

	var wrapper struct {
		Matching Policy `yaml:"matching"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return p, eris.Wrap(err, "match: parse policy")
	}

	o := wrapper.Matching
	if o.NameWeight > 0 {
		p.NameWeight = o.NameWeight
	}
	if o.CoverageWeight > 0 {
		p.CoverageWeight = o.CoverageWeight
	}
	if o.BonusWeight > 0 {
		p.BonusWeight = o.BonusWeight
	}
	if o.HighConfidenceThreshold > 0 {
		p.HighConfidenceThreshold = o.HighConfidenceThreshold
	}
	if o.DomainValidatedThreshold > 0 {
		p.DomainValidatedThreshold = o.DomainValidatedThreshold
	}
	if o.StandardThreshold > 0 {
		p.StandardThreshold = o.StandardThreshold
	}
	if o.AmbiguityMargin > 0 {
		p.AmbiguityMargin = o.AmbiguityMargin
	}
	if o.ForeignTLDPenalty > 0 {
		p.ForeignTLDPenalty = o.ForeignTLDPenalty
	}
	return p, nil
}
