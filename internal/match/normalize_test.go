package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanFirmName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"ampersand expansion", "Smith & Jones LLP", "smith and jones"},
		{"law offices prefix", "The Law Offices of John Doe", "john doe"},
		{"suffix words dropped", "Acme Legal Group, PC", "acme legal"},
		{"suffix not eaten from words", "Lincoln & Pincus LLC", "lincoln and pincus"},
		{"diacritics folded", "Muñoz & Associates", "munoz and"},
		{"whitespace collapsed", "  Smith ,  Jones  ", "smith jones"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanFirmName(tt.in))
		})
	}
}

func TestSignificantTokens(t *testing.T) {
	assert.Equal(t, []string{"smith", "jones"}, SignificantTokens("Smith & Jones LLP"))
	assert.Equal(t, []string{"rotstein", "shiffman"}, SignificantTokens("Law Offices of Rotstein and Shiffman"))
	assert.Empty(t, SignificantTokens("The Law Firm"))
}

func TestDomainRoot(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"smithjones.com", "smithjones"},
		{"smithjones.co.uk", "smithjones"},
		{"SmithJones.COM", "smithjones"},
		{"localhost", "localhost"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DomainRoot(tt.in), "input %q", tt.in)
	}
}

func TestAcronym(t *testing.T) {
	assert.Equal(t, "KE", Acronym("Kirkland & Ellis LLP"))
	assert.Equal(t, "SJ", Acronym("Smith and Jones"))
	assert.Equal(t, "", Acronym(""))
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("Smith & Jones LLP", "Smith and Jones"))
	assert.Equal(t, 0.0, Similarity("", "anything"))
	assert.Greater(t, Similarity("Smith & Jones", "Smith and Jones Law Partners"), 0.5)
	assert.Less(t, Similarity("Smith & Jones", "Completely Different Firm"), 0.4)
}

func TestRootsMatch(t *testing.T) {
	assert.True(t, RootsMatch("smithjones.com", "smithjones.net"))
	assert.True(t, RootsMatch("rotstein-sh.com", "rotstein-shiffman.com"))
	assert.False(t, RootsMatch("abc.com", "xyz.com"))
	assert.False(t, RootsMatch("", "smithjones.com"))
}
