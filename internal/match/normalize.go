// Package match resolves an ambiguous firm-name hint to a single
// high-confidence provider organization: query generation, industry
// filtering and weighted match scoring.
package match

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// legalPhrases are multi-word boilerplate stripped before comparison.
// Longer phrases first so "the law offices of" is removed before "law firm".
var legalPhrases = []string{
	"the law offices of", "law offices of", "law office of", "law firm of",
	"attorneys at law", "law firm",
}

// legalSuffixWords are entity-type tokens dropped on word boundaries, never
// by substring (a substring pass would eat "inc" out of "Lincoln").
var legalSuffixWords = map[string]bool{
	"llp": true, "llc": true, "pllc": true, "pc": true, "ltd": true,
	"inc": true, "corporation": true, "corp": true, "group": true,
	"associates": true,
}

// stopwords never count as significant tokens.
var stopwords = map[string]bool{
	"the": true, "of": true, "and": true, "at": true, "a": true, "an": true,
	"law": true, "firm": true, "office": true, "offices": true, "legal": true,
}

var diacriticStripper = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// foldASCII lowercases and strips diacritics so "Muñoz" and "Munoz" compare
// equal.
func foldASCII(s string) string {
	out, _, err := transform.String(diacriticStripper, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// CleanFirmName normalizes a firm-name hint for comparison: case and
// diacritic folding, ampersand expansion, legal boilerplate removal,
// punctuation and whitespace collapse.
func CleanFirmName(name string) string {
	n := foldASCII(name)
	n = strings.ReplaceAll(n, "&", " and ")
	for _, phrase := range legalPhrases {
		n = strings.ReplaceAll(n, phrase, " ")
	}
	var b strings.Builder
	for _, r := range n {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	var toks []string
	for _, t := range strings.Fields(b.String()) {
		if !legalSuffixWords[t] {
			toks = append(toks, t)
		}
	}
	return strings.Join(toks, " ")
}

// SignificantTokens returns the cleaned name's tokens minus stopwords.
// These are the tokens that must be covered for a candidate to count as a
// real match rather than a spurious surname collision.
func SignificantTokens(name string) []string {
	var toks []string
	for _, t := range strings.Fields(CleanFirmName(name)) {
		if !stopwords[t] {
			toks = append(toks, t)
		}
	}
	return toks
}

// Acronym returns the all-caps initials of the name's tokens, e.g.
// "Kirkland & Ellis" → "KE".
func Acronym(name string) string {
	var b strings.Builder
	for _, t := range strings.Fields(CleanFirmName(name)) {
		if t == "and" {
			continue
		}
		b.WriteRune(unicode.ToUpper([]rune(t)[0]))
	}
	return b.String()
}

// DomainRoot extracts the registrable label of a domain:
// "smithjones.co.uk" → "smithjones", "smithjones.com" → "smithjones".
func DomainRoot(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	if d == "" {
		return ""
	}
	parts := strings.Split(d, ".")
	if len(parts) > 2 && parts[len(parts)-2] == "co" {
		return parts[len(parts)-3]
	}
	if len(parts) > 1 {
		return parts[0]
	}
	return d
}

// Similarity computes a normalized edit-distance similarity in [0,1] over
// the cleaned forms of both names. 1.0 means identical after cleaning.
func Similarity(a, b string) float64 {
	ca, cb := CleanFirmName(a), CleanFirmName(b)
	if ca == cb {
		if ca == "" {
			return 0
		}
		return 1
	}
	if ca == "" || cb == "" {
		return 0
	}
	dist := levenshtein([]rune(ca), []rune(cb))
	longest := len([]rune(ca))
	if l := len([]rune(cb)); l > longest {
		longest = l
	}
	return 1 - float64(dist)/float64(longest)
}

// levenshtein computes edit distance with a two-row matrix.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
