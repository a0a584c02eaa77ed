package people

import (
	"regexp"
	"strings"

	"github.com/mvc24/bibliopa/internal/models"
)

// DefaultSplitBatchSize is the number of multi-person mentions sent to be split at once
const DefaultSplitBatchSize = 25

var multiPersonPattern = regexp.MustCompile(`(?i) (und|u\.) `)

// IsMultiPerson reports whether a mention the parser left unstructured
// names several people, as in "Müller und Schmidt" or "Grimm, J. u. W.".
func IsMultiPerson(m models.PersonMention) bool {
	if strings.TrimSpace(m.FamilyName) != "" || strings.TrimSpace(m.GivenNames) != "" {
		return false
	}
	return multiPersonPattern.MatchString(m.DisplayName) || multiPersonPattern.MatchString(m.SingleName)
}

// MultiPersonMentions returns the mentions that need splitting, in input
// order. Translators are left alone since a book has a single translator slot.
func MultiPersonMentions(mentions []models.PersonMention) []models.PersonMention {
	var out []models.PersonMention
	for _, m := range mentions {
		if m.Roles.IsTranslator {
			continue
		}
		if IsMultiPerson(m) {
			out = append(out, m)
		}
	}
	return out
}

// SplitBatches cuts mentions into consecutive batches of at most size
func SplitBatches(mentions []models.PersonMention, size int) [][]models.PersonMention {
	if size <= 0 {
		size = DefaultSplitBatchSize
	}
	var out [][]models.PersonMention
	for start := 0; start < len(mentions); start += size {
		out = append(out, mentions[start:min(start+size, len(mentions))])
	}
	return out
}

// Split is the set of people a multi-person mention was broken into
type Split struct {
	Source models.PersonMention `json:"source"`
	People []models.PersonName  `json:"people"`
}

// ApplySplits replaces each split mention in the parsed books with the
// people it was split into, keeping their position in the role list. Splits
// into fewer than two people are ignored. Returns how many mentions were
// replaced.
func ApplySplits(books []models.ParsedBook, splits []Split) int {
	byKey := make(map[string][]models.PersonName, len(splits))
	for _, s := range splits {
		if len(s.People) < 2 {
			continue
		}
		byKey[MentionKey(s.Source)] = s.People
	}
	if len(byKey) == 0 {
		return 0
	}

	replaced := 0
	for i := range books {
		b := &books[i]
		source := b.Entry.Administrative.SourceFilename
		expand := func(list []models.PersonName, roles models.Roles) []models.PersonName {
			if len(list) == 0 {
				return list
			}
			out := make([]models.PersonName, 0, len(list))
			for j, p := range list {
				if people, ok := byKey[MentionKey(mention(b.CompositeID, source, p, roles, j))]; ok {
					out = append(out, people...)
					replaced++
					continue
				}
				out = append(out, p)
			}
			return out
		}
		b.Entry.Authors = expand(b.Entry.Authors, models.Roles{IsAuthor: true})
		b.Entry.Editors = expand(b.Entry.Editors, models.Roles{IsEditor: true})
		b.Entry.Contributors = expand(b.Entry.Contributors, models.Roles{IsContributor: true})
	}
	return replaced
}
