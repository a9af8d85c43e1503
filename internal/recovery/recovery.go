// Package recovery reclassifies leads that were skipped for unsearchable firm
// hints. A language model labels each hint as a person, a firm, or junk;
// confident firm labels are re-marked enrichable.
package recovery

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/resilience"
	"github.com/sells-group/enrich-cli/pkg/anthropic"
)

// Classification labels what a firm hint actually names.
type Classification string

const (
	ClassPerson  Classification = "PERSON"
	ClassFirm    Classification = "FIRM"
	ClassJunk    Classification = "JUNK"
	ClassUnknown Classification = "UNKNOWN"
)

const (
	// DefaultMinConfidence is the model confidence (1-10) required to
	// accept a firm recovery.
	DefaultMinConfidence = 7

	defaultModel     = "claude-haiku-4-5-20251001"
	defaultMaxTokens = 256
)

// Result is one classified lead. Recovered is set only for firm
// classifications at or above the confidence threshold.
type Result struct {
	Lead       model.Lead     `json:"lead"`
	Class      Classification `json:"classification"`
	Confidence int            `json:"confidence"`
	Website    string         `json:"website,omitempty"`
	Recovered  bool           `json:"recovered"`
}

// Option configures the classifier.
type Option func(*Classifier)

// WithModel overrides the classification model.
func WithModel(m string) Option {
	return func(c *Classifier) { c.model = m }
}

// WithMinConfidence overrides the recovery threshold.
func WithMinConfidence(n int) Option {
	return func(c *Classifier) { c.minConfidence = n }
}

// WithBackoff overrides the retry policy for model calls.
func WithBackoff(b resilience.Backoff) Option {
	return func(c *Classifier) { c.backoff = b }
}

// Classifier runs skipped leads through the model.
type Classifier struct {
	ai            anthropic.Client
	model         string
	minConfidence int
	backoff       resilience.Backoff
}

// New creates a classifier over an Anthropic client.
func New(ai anthropic.Client, opts ...Option) *Classifier {
	c := &Classifier{
		ai:            ai,
		model:         defaultModel,
		minConfidence: DefaultMinConfidence,
		backoff:       resilience.DefaultBackoff(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Recoverable filters leads down to the ones worth classifying: skipped, with
// a usable firm hint.
func Recoverable(leads []model.Lead) []model.Lead {
	var out []model.Lead
	for _, l := range leads {
		if l.SkipReason == "" {
			continue
		}
		hint := strings.TrimSpace(l.FirmHint)
		if hint == "" || strings.EqualFold(hint, "n/a") {
			continue
		}
		out = append(out, l)
	}
	return out
}

// Recover classifies every recoverable lead. Classification errors skip the
// lead rather than aborting the batch.
func (c *Classifier) Recover(ctx context.Context, leads []model.Lead) ([]Result, error) {
	candidates := Recoverable(leads)
	zap.L().Info("starting lead recovery",
		zap.Int("skipped_leads", len(candidates)),
		zap.Int("min_confidence", c.minConfidence))

	results := make([]Result, 0, len(candidates))
	for _, lead := range candidates {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		res, err := c.classify(ctx, lead)
		if err != nil {
			zap.L().Warn("classification failed",
				zap.String("lead_id", lead.LeadID),
				zap.Error(err))
			continue
		}

		if res.Class == ClassFirm && res.Confidence >= c.minConfidence {
			res.Recovered = true
			res.Lead.NeedsEnrichment = true
			res.Lead.SkipReason = ""
			zap.L().Info("lead recovered",
				zap.String("lead_id", lead.LeadID),
				zap.String("firm_hint", lead.FirmHint),
				zap.Int("confidence", res.Confidence))
		}
		results = append(results, res)
	}
	return results, nil
}

const promptFormat = `Analyze this attorney name field: %q
Attorney email: %q

Determine:
1. Is this a PERSON name, a LAW FIRM name, or JUNK data?
2. Your confidence (1-10).
3. If it is a firm, suggest a likely website URL. If the attorney email is
   present, use its root domain for the suggestion.

Respond in this exact format:
TYPE: [PERSON/FIRM/JUNK]
CONFIDENCE: [1-10]
WEBSITE: [suggested URL or "unknown"]`

func (c *Classifier) classify(ctx context.Context, lead model.Lead) (Result, error) {
	resp, err := resilience.DoVal(ctx, c.backoff, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return c.ai.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     c.model,
			MaxTokens: defaultMaxTokens,
			Messages: []anthropic.Message{
				{Role: "user", Content: fmt.Sprintf(promptFormat, lead.FirmHint, lead.AttorneyEmail)},
			},
		})
	})
	if err != nil {
		return Result{}, err
	}
	resp.Usage.LogCost(c.model, "lead_recovery")

	res := parseResponse(resp.Text())
	res.Lead = lead
	return res, nil
}

// parseResponse reads the TYPE/CONFIDENCE/WEBSITE lines. Anything the model
// gets wrong degrades to UNKNOWN or zero confidence, never an error.
func parseResponse(text string) Result {
	res := Result{Class: ClassUnknown}
	for _, line := range strings.Split(text, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), "[]")
		switch strings.ToUpper(strings.TrimSpace(key)) {
		case "TYPE":
			switch Classification(strings.ToUpper(value)) {
			case ClassPerson, ClassFirm, ClassJunk:
				res.Class = Classification(strings.ToUpper(value))
			}
		case "CONFIDENCE":
			if n, err := strconv.Atoi(value); err == nil {
				res.Confidence = n
			}
		case "WEBSITE":
			if !strings.EqualFold(value, "unknown") {
				res.Website = value
			}
		}
	}
	return res
}
