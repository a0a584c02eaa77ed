package people

import (
	"strings"

	"github.com/mvc24/bibliopa/internal/models"
	"github.com/mvc24/bibliopa/internal/textmatch"
)

// UnparseableKey is the group key base for mentions with no family or single name
const UnparseableKey = "<unparseable>"

// DefaultOrganisationKeywords mark a name as an institution rather than a person
var DefaultOrganisationKeywords = []string{
	"institut", "stiftung", "archiv", "gesellschaft", "verein", "museum",
	"verlag", "universität", "bibliothek", "akademie", "kommission",
	"society", "university", "library", "foundation", "institute",
	"publisher", "press", "archive",
}

// GroupKey returns the normalized family (or single) name, suffixed with
// "_" and the first letter of the given names when there are any.
func GroupKey(m models.PersonMention) string {
	base := textmatch.Normalize(m.FamilyName)
	if base == "" {
		base = textmatch.Normalize(m.SingleName)
	}
	if base == "" {
		base = UnparseableKey
	}

	given := []rune(textmatch.Normalize(m.GivenNames))
	if len(given) == 0 {
		return base
	}
	return base + "_" + string(given[0])
}

// HasUsableName reports whether the mention carries any name to group on
func HasUsableName(m models.PersonMention) bool {
	return strings.TrimSpace(m.FamilyName) != "" || strings.TrimSpace(m.SingleName) != ""
}

// OrganisationDetector flags names containing one of its keywords
type OrganisationDetector struct {
	keywords []string
}

func NewOrganisationDetector(keywords []string) OrganisationDetector {
	if len(keywords) == 0 {
		keywords = DefaultOrganisationKeywords
	}
	normalized := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = textmatch.Normalize(k); k != "" {
			normalized = append(normalized, k)
		}
	}
	return OrganisationDetector{keywords: normalized}
}

// IsOrganisation checks the group key base and the display name
func (d OrganisationDetector) IsOrganisation(m models.PersonMention) bool {
	haystacks := []string{
		textmatch.Normalize(m.FamilyName),
		textmatch.Normalize(m.SingleName),
		textmatch.Normalize(m.DisplayName),
	}
	for _, h := range haystacks {
		if h == "" {
			continue
		}
		for _, k := range d.keywords {
			if strings.Contains(h, k) {
				return true
			}
		}
	}
	return false
}

// slugify turns a group key into an id in the style of "adorno_theodor_w"
func slugify(key string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range key {
		switch {
		case r == ' ' || r == '_' || r == '-':
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		case r == '<' || r == '>' || r == '.' || r == ',' || r == '\'' || r == '"':
		default:
			b.WriteRune(r)
			lastUnderscore = false
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}
