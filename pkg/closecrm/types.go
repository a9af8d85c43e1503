package closecrm

import (
	"encoding/json"
	"strings"

	"github.com/sells-group/enrich-cli/internal/model"
)

// FieldMap names the Close custom-field IDs that carry attorney firm and
// email data. IDs are org-specific, so callers override the defaults via
// WithFieldMap.
type FieldMap struct {
	Firm          string `mapstructure:"firm"           yaml:"firm"`
	FirmAlt       string `mapstructure:"firm_alt"       yaml:"firm_alt"`
	AttorneyEmail string `mapstructure:"attorney_email" yaml:"attorney_email"`
}

// DefaultFieldMap returns the field IDs of the production Close org.
func DefaultFieldMap() FieldMap {
	return FieldMap{
		Firm:          "cf_bB8dqX4BWGbISOehyNVVaZhJpfV9OZNOqs5WfYjaRYv",
		FirmAlt:       "cf_lQKyH0EhHsNDLZn8KqfFSb0342doHgTNfWdTcfWCljw",
		AttorneyEmail: "cf_vq0cl2Sj1h0QaSePdnTdf3NyAjx3w4QcgmlhgJrWrZE",
	}
}

// searchRequest is the body for POST /data/search/.
type searchRequest struct {
	Query        searchQuery  `json:"query"`
	Fields       searchFields `json:"_fields"`
	ResultsLimit int          `json:"results_limit"`
	Skip         int          `json:"_skip,omitempty"`
}

type searchQuery struct {
	Type          string `json:"type"`
	SavedSearchID string `json:"saved_search_id"`
}

type searchFields struct {
	Lead []string `json:"lead"`
}

type searchResponse struct {
	Data []leadPayload `json:"data"`
}

// leadPayload is a Close lead with the contact subtree the extraction needs.
type leadPayload struct {
	ID          string           `json:"id"`
	DisplayName string           `json:"display_name"`
	Contacts    []contactPayload `json:"contacts"`
}

type contactPayload struct {
	ID          string         `json:"id,omitempty"`
	LeadID      string         `json:"lead_id,omitempty"`
	Name        string         `json:"name"`
	DisplayName string         `json:"display_name,omitempty"`
	Title       string         `json:"title,omitempty"`
	Emails      []emailEntry   `json:"emails,omitempty"`
	Phones      []phoneEntry   `json:"phones,omitempty"`
	Custom      map[string]any `json:"custom,omitempty"`

	// Custom field values arrive flattened as "custom.<field_id>" keys, not
	// under Custom. They are captured separately during decode.
	customFlat map[string]string
}

type emailEntry struct {
	Email string `json:"email"`
	Type  string `json:"type,omitempty"`
}

type phoneEntry struct {
	Phone string `json:"phone"`
	Type  string `json:"type,omitempty"`
}

// UnmarshalJSON captures the flattened "custom.<field_id>" keys Close emits
// alongside the regular fields.
func (c *contactPayload) UnmarshalJSON(data []byte) error {
	type alias contactPayload
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*c = contactPayload(a)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for k, v := range raw {
		if !strings.HasPrefix(k, "custom.") {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			continue
		}
		if c.customFlat == nil {
			c.customFlat = map[string]string{}
		}
		c.customFlat[k] = s
	}
	return nil
}

type contactListResponse struct {
	Data []contactPayload `json:"data"`
}

// firmKeywords mark a hint as a firm name rather than a person's name. A
// public-domain attorney email only disqualifies a lead when its hint fails
// this test too.
var firmKeywords = []string{
	"law", "legal", "attorney", "attorneys", "counsel",
	"llp", "llc", "pllc", "p.c", "pc", "associates", "group", "partners",
}

func looksLikeFirm(name string) bool {
	n := strings.ToLower(name)
	for _, kw := range firmKeywords {
		for _, tok := range strings.FieldsFunc(n, func(r rune) bool {
			return r == ' ' || r == ',' || r == '.' || r == '&'
		}) {
			if tok == kw {
				return true
			}
		}
		if strings.Contains(n, kw+" ") || strings.HasSuffix(n, kw) {
			return true
		}
	}
	return false
}

func (c contactPayload) customField(id string) string {
	if v := c.customFlat["custom."+id]; v != "" {
		return v
	}
	if c.Custom != nil {
		if v, ok := c.Custom[id].(string); ok {
			return v
		}
	}
	return ""
}

// extractLead maps a Close lead onto the pipeline's lead snapshot. The first
// contact on the lead is the client; the attorney firm and email live in
// custom fields on that contact.
func extractLead(p leadPayload, fields FieldMap) (model.Lead, bool) {
	if len(p.Contacts) == 0 {
		return model.Lead{}, false
	}
	client := p.Contacts[0]

	name := client.Name
	if name == "" {
		name = client.DisplayName
	}

	lead := model.Lead{
		LeadID:     p.ID,
		ClientName: name,
	}
	if len(client.Emails) > 0 {
		lead.ClientEmail = client.Emails[0].Email
	}

	firm := client.customField(fields.Firm)
	if firm == "" || firm == "N/A" {
		firm = client.customField(fields.FirmAlt)
	}
	if firm != "N/A" {
		lead.FirmHint = firm
	}
	if email := client.customField(fields.AttorneyEmail); email != "N/A" {
		lead.AttorneyEmail = email
		lead.FirmDomain = model.DomainFromEmail(email)
	}

	lead.NeedsEnrichment = true
	switch {
	case lead.FirmHint == "":
		lead.NeedsEnrichment = false
		lead.SkipReason = "no_firm_name"
	case lead.AttorneyEmail != "" && model.IsPublicDomain(lead.FirmDomain) && !looksLikeFirm(lead.FirmHint):
		lead.NeedsEnrichment = false
		lead.SkipReason = "personal_email_and_person_name"
	}
	return lead, true
}
