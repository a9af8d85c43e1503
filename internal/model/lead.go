// Package model defines the core data types shared across the enrichment pipeline.
package model

import "strings"

// Lead is an immutable snapshot of a CRM lead at extraction time. The firm
// hint and attorney email are the only searchable signals; FirmDomain is
// derived from the attorney email when present.
type Lead struct {
	LeadID        string `json:"lead_id"`
	ClientName    string `json:"client_name"`
	ClientEmail   string `json:"client_email,omitempty"`
	FirmHint      string `json:"attorney_firm"`
	AttorneyEmail string `json:"attorney_email,omitempty"`
	FirmDomain    string `json:"firm_domain,omitempty"`

	NeedsEnrichment bool   `json:"needs_apollo_enrichment"`
	SkipReason      string `json:"skip_reason,omitempty"`
}

// publicDomains are consumer mail providers that never identify a firm.
var publicDomains = map[string]bool{
	"gmail.com":      true,
	"yahoo.com":      true,
	"outlook.com":    true,
	"hotmail.com":    true,
	"aol.com":        true,
	"icloud.com":     true,
	"protonmail.com": true,
	"yandex.com":     true,
	"msn.com":        true,
	"live.com":       true,
	"me.com":         true,
}

// IsPublicDomain reports whether d is a consumer mail domain.
func IsPublicDomain(d string) bool {
	return d != "" && publicDomains[strings.ToLower(d)]
}

// DomainFromEmail extracts the domain part of an email address, or "" if the
// input is not an address.
func DomainFromEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}

// EmailDomain returns the lead's firm domain if it is usable for validation:
// derived from the attorney email and not a public mail provider.
func (l Lead) EmailDomain() string {
	d := l.FirmDomain
	if d == "" {
		d = DomainFromEmail(l.AttorneyEmail)
	}
	if IsPublicDomain(d) {
		return ""
	}
	return strings.ToLower(d)
}

// Searchable reports whether the lead carries enough signal to attempt a
// provider search (a firm hint or a usable email domain).
func (l Lead) Searchable() bool {
	return (l.FirmHint != "" && l.FirmHint != "N/A") || l.EmailDomain() != ""
}
