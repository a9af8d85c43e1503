package apollo

// Organization is a company record as returned by organization search.
type Organization struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	PrimaryDomain string   `json:"primary_domain,omitempty"`
	WebsiteURL    string   `json:"website_url,omitempty"`
	LinkedInURL   string   `json:"linkedin_url,omitempty"`
	Phone         string   `json:"phone,omitempty"`
	Industry      string   `json:"industry,omitempty"`
	Industries    []string `json:"industries,omitempty"`
	Keywords      []string `json:"keywords,omitempty"`
}

// Person is a people-search or enrichment result. Email is masked until a
// reveal is paid for.
type Person struct {
	ID           string        `json:"id"`
	FirstName    string        `json:"first_name,omitempty"`
	LastName     string        `json:"last_name,omitempty"`
	Title        string        `json:"title,omitempty"`
	Email        string        `json:"email,omitempty"`
	EmailStatus  string        `json:"email_status,omitempty"`
	LinkedInURL  string        `json:"linkedin_url,omitempty"`
	Organization *Organization `json:"organization,omitempty"`
	PhoneNumbers []Phone       `json:"phone_numbers,omitempty"`
}

// Phone is a single revealed phone number.
type Phone struct {
	RawNumber       string  `json:"raw_number"`
	SanitizedNumber string  `json:"sanitized_number,omitempty"`
	Type            string  `json:"type_cd,omitempty"`
	Confidence      float64 `json:"confidence,omitempty"`
}

// OrgSearchRequest is the body for POST /mixed_companies/search.
type OrgSearchRequest struct {
	QOrganizationName string `json:"q_organization_name,omitempty"`
	QKeywords         string `json:"q_keywords,omitempty"`
	Page              int    `json:"page,omitempty"`
	PerPage           int    `json:"per_page,omitempty"`
}

type orgSearchResponse struct {
	Organizations []Organization `json:"organizations"`
	Accounts      []Organization `json:"accounts"`
	Pagination    pagination     `json:"pagination"`
}

// PeopleSearchRequest is the body for POST /mixed_people/search.
type PeopleSearchRequest struct {
	OrganizationIDs []string `json:"organization_ids,omitempty"`
	PersonTitles    []string `json:"person_titles,omitempty"`
	Page            int      `json:"page,omitempty"`
	PerPage         int      `json:"per_page,omitempty"`
}

type peopleSearchResponse struct {
	People     []Person   `json:"people"`
	Contacts   []Person   `json:"contacts"`
	Pagination pagination `json:"pagination"`
}

// matchRequest is the body for POST /people/match. Email reveals set
// RevealPersonalEmails; phone reveals set RevealPhoneNumber plus the webhook
// callback that will carry the asynchronous result.
type matchRequest struct {
	ID                   string `json:"id"`
	RevealPersonalEmails bool   `json:"reveal_personal_emails,omitempty"`
	RevealPhoneNumber    bool   `json:"reveal_phone_number,omitempty"`
	WebhookURL           string `json:"webhook_url,omitempty"`
}

type matchResponse struct {
	Person *Person `json:"person"`
}

type pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalPages int `json:"total_pages"`
}
