package contact

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrich-cli/internal/model"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		title string
		want  model.SeniorityTier
	}{
		{"Partner", model.TierPartner},
		{"Managing Partner", model.TierPartner},
		{"Senior Partner", model.TierPartner},
		{"Associate", model.TierAssociate},
		{"Senior Associate", model.TierAssociate},
		{"Of Counsel", model.TierAssociate},
		{"Attorney", model.TierAttorney},
		{"Trial Lawyer", model.TierAttorney},
		{"General Counsel", model.TierAttorney},
		{"Paralegal", model.TierSupport},
		{"Legal Assistant", model.TierSupport},
		{"Law Clerk", model.TierSupport},
		{"Office Manager", model.TierExcluded},
		{"Marketing Director", model.TierExcluded},
		{"", model.TierExcluded},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.title))
		})
	}
}

func person(id, title string) model.Contact {
	return model.Contact{ID: id, Title: title}
}

func TestPrioritize_TierOrder(t *testing.T) {
	contacts := []model.Contact{
		person("p_para", "Paralegal"),
		person("p_assoc", "Associate"),
		person("p_atty", "Attorney"),
		person("p_partner", "Partner"),
		person("p_admin", "Office Manager"),
	}

	got := Prioritize(contacts, 3)
	require.Len(t, got, 3)
	assert.Equal(t, "p_partner", got[0].ID)
	assert.Equal(t, "p_assoc", got[1].ID)
	assert.Equal(t, "p_atty", got[2].ID)

	// Tier is stamped on the way out.
	assert.Equal(t, model.TierPartner, got[0].Tier)
}

func TestPrioritize_ExcludesNonLegalTitles(t *testing.T) {
	contacts := []model.Contact{
		person("p_admin", "Office Manager"),
		person("p_mkt", "Marketing Director"),
	}
	assert.Empty(t, Prioritize(contacts, 6))
}

func TestPrioritize_FewerThanTargetReturnsAll(t *testing.T) {
	contacts := []model.Contact{
		person("p_1", "Partner"),
		person("p_2", "Associate"),
	}
	assert.Len(t, Prioritize(contacts, 6), 2)
}

func TestPrioritize_DedupesByID(t *testing.T) {
	contacts := []model.Contact{
		person("p_1", "Partner"),
		person("p_1", "Partner"),
		person("p_2", "Partner"),
	}
	assert.Len(t, Prioritize(contacts, 6), 2)
}

func TestPrioritize_RoundRobinWithinTier(t *testing.T) {
	// Four plain partners ahead of two managing partners; a straight take
	// would never reach the managing partners.
	contacts := []model.Contact{
		person("p_1", "Partner"),
		person("p_2", "Partner"),
		person("p_3", "Partner"),
		person("p_4", "Partner"),
		person("m_1", "Managing Partner"),
		person("m_2", "Managing Partner"),
	}

	got := Prioritize(contacts, 3)
	require.Len(t, got, 3)
	assert.Equal(t, "p_1", got[0].ID)
	assert.Equal(t, "m_1", got[1].ID)
	assert.Equal(t, "p_2", got[2].ID)
}

func TestPrioritize_Deterministic(t *testing.T) {
	var contacts []model.Contact
	for i := 0; i < 20; i++ {
		contacts = append(contacts, person(fmt.Sprintf("p_%02d", i), "Attorney"))
	}
	assert.Equal(t, Prioritize(contacts, 6), Prioritize(contacts, 6))
}
