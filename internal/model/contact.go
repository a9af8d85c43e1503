package model

import (
	"strings"
	"time"
)

// SeniorityTier buckets a legal title for contact prioritization.
// Lower is more senior; TierExcluded marks non-legal titles that are never
// ranked.
type SeniorityTier int

const (
	TierExcluded  SeniorityTier = 0
	TierPartner   SeniorityTier = 1
	TierAssociate SeniorityTier = 2
	TierAttorney  SeniorityTier = 3
	TierSupport   SeniorityTier = 4
)

func (t SeniorityTier) String() string {
	switch t {
	case TierPartner:
		return "partner"
	case TierAssociate:
		return "associate"
	case TierAttorney:
		return "attorney"
	case TierSupport:
		return "support"
	default:
		return "excluded"
	}
}

// Contact is a person at a matched organization. Email starts locked
// (masked by the provider) and is filled in by an accepted unlock.
type Contact struct {
	ID             string        `json:"person_id"`
	FirstName      string        `json:"first_name"`
	LastName       string        `json:"last_name"`
	Title          string        `json:"title,omitempty"`
	Tier           SeniorityTier `json:"tier"`
	OrganizationID string        `json:"organization_id"`
	Email          string        `json:"email,omitempty"`
	EmailUnlocked  bool          `json:"email_unlocked"`
	LinkedInURL    string        `json:"linkedin_url,omitempty"`
}

// FullName joins the name parts, tolerating either being empty.
func (c Contact) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// EmailDomain returns the domain of the unlocked email, or "".
func (c Contact) EmailDomain() string {
	return DomainFromEmail(c.Email)
}

// PhoneNumber is one resolved number from an asynchronous phone reveal.
type PhoneNumber struct {
	Number     string  `json:"number"`
	Type       string  `json:"type,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// RequestStatus is the lifecycle state of a pending phone request.
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestFulfilled RequestStatus = "fulfilled"
	RequestExpired   RequestStatus = "expired"
)

// Terminal reports whether no further transition is valid.
func (s RequestStatus) Terminal() bool {
	return s == RequestFulfilled || s == RequestExpired
}

// PendingPhoneRequest records one outstanding phone-reveal request. Unique
// per contact per run; mutated only by the request tracker.
type PendingPhoneRequest struct {
	CorrelationKey string        `json:"correlation_key"`
	ContactID      string        `json:"contact_id"`
	OrganizationID string        `json:"organization_id"`
	RunID          string        `json:"run_id"`
	Status         RequestStatus `json:"status"`
	RequestedAt    time.Time     `json:"requested_at"`
	ResolvedAt     *time.Time    `json:"resolved_at,omitempty"`
	Phones         []PhoneNumber `json:"phones,omitempty"`
}

// WebhookPayload is an inbound provider delivery: a contact identity plus
// zero or more phone numbers. Deliveries arrive out of order and may repeat.
type WebhookPayload struct {
	CorrelationKey string        `json:"correlation_key,omitempty"`
	ContactID      string        `json:"contact_id,omitempty"`
	Phones         []PhoneNumber `json:"phones,omitempty"`
	ReceivedAt     time.Time     `json:"received_at,omitempty"`
}
