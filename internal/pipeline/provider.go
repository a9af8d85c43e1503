package pipeline

import (
	"context"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/pkg/apollo"
)

// Provider is the people-intelligence surface the orchestrator drives,
// expressed in pipeline types so tests can substitute a fake without touching
// the wire client.
type Provider interface {
	SearchOrganizations(ctx context.Context, query string) ([]model.Organization, error)
	SearchPeople(ctx context.Context, orgID string, titles []string) ([]model.Contact, error)
	RevealEmail(ctx context.Context, c model.Contact) (model.Contact, error)
	RequestPhone(ctx context.Context, contactID, webhookURL string) error
}

// apolloProvider adapts the Apollo client to the Provider surface.
type apolloProvider struct {
	client apollo.Client
}

// NewApolloProvider wraps an Apollo client.
func NewApolloProvider(c apollo.Client) Provider {
	return &apolloProvider{client: c}
}

func (p *apolloProvider) SearchOrganizations(ctx context.Context, query string) ([]model.Organization, error) {
	orgs, err := p.client.SearchOrganizations(ctx, query)
	if err != nil {
		return nil, err
	}
	out := make([]model.Organization, 0, len(orgs))
	for _, o := range orgs {
		out = append(out, toOrganization(o))
	}
	return out, nil
}

func (p *apolloProvider) SearchPeople(ctx context.Context, orgID string, titles []string) ([]model.Contact, error) {
	people, err := p.client.SearchPeople(ctx, orgID, titles)
	if err != nil {
		return nil, err
	}
	out := make([]model.Contact, 0, len(people))
	for _, person := range people {
		out = append(out, toContact(person, orgID))
	}
	return out, nil
}

func (p *apolloProvider) RevealEmail(ctx context.Context, c model.Contact) (model.Contact, error) {
	person, err := p.client.RevealEmail(ctx, c.ID)
	if err != nil {
		return model.Contact{}, err
	}
	revealed := c
	revealed.Email = person.Email
	return revealed, nil
}

func (p *apolloProvider) RequestPhone(ctx context.Context, contactID, webhookURL string) error {
	return p.client.RequestPhone(ctx, contactID, webhookURL)
}

func toOrganization(o apollo.Organization) model.Organization {
	industries := o.Industries
	if o.Industry != "" {
		industries = append(append([]string(nil), industries...), o.Industry)
	}
	return model.Organization{
		ID:          o.ID,
		Name:        o.Name,
		Domain:      o.PrimaryDomain,
		WebsiteURL:  o.WebsiteURL,
		LinkedInURL: o.LinkedInURL,
		Phone:       o.Phone,
		Industries:  industries,
		Keywords:    o.Keywords,
	}
}

func toContact(p apollo.Person, orgID string) model.Contact {
	c := model.Contact{
		ID:             p.ID,
		FirstName:      p.FirstName,
		LastName:       p.LastName,
		Title:          p.Title,
		OrganizationID: orgID,
		LinkedInURL:    p.LinkedInURL,
	}
	// Search results carry masked placeholder emails; only a paid reveal
	// yields a real one.
	if p.EmailStatus == "verified" && p.Email != "" {
		c.Email = p.Email
	}
	return c
}
