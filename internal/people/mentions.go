package people

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/mvc24/bibliopa/internal/models"
)

// DefaultBatchSize is the number of mentions sent to the dedup service at once
const DefaultBatchSize = 75

// ExtractMentions projects every author, editor, contributor and translator
// of the parsed books into unassigned mentions. List roles take their index
// as sort order; the translator always has sort order 0.
func ExtractMentions(books []models.ParsedBook) []models.PersonMention {
	var out []models.PersonMention

	for _, b := range books {
		source := b.Entry.Administrative.SourceFilename
		lists := []struct {
			people []models.PersonName
			roles  models.Roles
		}{
			{b.Entry.Authors, models.Roles{IsAuthor: true}},
			{b.Entry.Editors, models.Roles{IsEditor: true}},
			{b.Entry.Contributors, models.Roles{IsContributor: true}},
		}
		for _, l := range lists {
			for i, p := range l.people {
				out = append(out, mention(b.CompositeID, source, p, l.roles, i))
			}
		}
		if b.Entry.Translator != nil {
			out = append(out, mention(b.CompositeID, source, *b.Entry.Translator, models.Roles{IsTranslator: true}, 0))
		}
	}

	return out
}

func mention(compositeID, source string, p models.PersonName, roles models.Roles, sortOrder int) models.PersonMention {
	return models.PersonMention{
		BookCompositeID: compositeID,
		SourceFilename:  source,
		DisplayName:     p.DisplayName,
		FamilyName:      p.FamilyName,
		GivenNames:      p.GivenNames,
		NameParticles:   p.NameParticles,
		SingleName:      p.SingleName,
		Roles:           roles,
		SortOrder:       sortOrder,
	}
}

// MentionKey identifies a mention across a round trip through the dedup service
func MentionKey(m models.PersonMention) string {
	return fmt.Sprintf("%s|%t%t%t%t|%d|%s", m.BookCompositeID,
		m.Roles.IsAuthor, m.Roles.IsEditor, m.Roles.IsContributor, m.Roles.IsTranslator,
		m.SortOrder, m.DisplayName)
}

// MergeAssignments copies the identity assigned by the dedup service onto the
// original mentions. Mentions the service did not return stay unassigned, so
// the mention count never changes. Returns how many mentions were matched.
func MergeAssignments(mentions, assigned []models.PersonMention) ([]models.PersonMention, int) {
	byKey := make(map[string]models.PersonIdentity, len(assigned))
	for _, a := range assigned {
		byKey[MentionKey(a)] = a.Identity
	}

	out := make([]models.PersonMention, len(mentions))
	matched := 0
	for i, m := range mentions {
		out[i] = m
		if id, ok := byKey[MentionKey(m)]; ok {
			out[i].Identity = id
			matched++
		}
	}
	return out, matched
}

var nonWord = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)

// SurnameKey is the coarse blocking key used to keep likely duplicates in
// the same dedup batch.
func SurnameKey(m models.PersonMention) string {
	family := strings.TrimSpace(m.FamilyName)
	if family == "" {
		display := strings.TrimSpace(m.DisplayName)
		if before, _, ok := strings.Cut(display, ","); ok {
			family = strings.TrimSpace(before)
		} else if words := strings.Fields(display); len(words) > 0 {
			family = words[len(words)-1]
		}
	}
	if family == "" {
		return "unknown"
	}

	family = strings.ToLower(family)
	family = nonWord.ReplaceAllString(family, "")
	family = strings.Join(strings.Fields(family), " ")
	if family == "" {
		return "unknown"
	}
	return family
}

// Batches packs surname groups, in surname order, into batches of at most
// size mentions. A surname group is never split unless it alone exceeds size.
func Batches(mentions []models.PersonMention, size int) [][]models.PersonMention {
	if size <= 0 {
		size = DefaultBatchSize
	}

	groups := make(map[string][]models.PersonMention)
	for _, m := range mentions {
		k := SurnameKey(m)
		groups[k] = append(groups[k], m)
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var batches [][]models.PersonMention
	var current []models.PersonMention
	for _, k := range keys {
		g := groups[k]
		switch {
		case len(g) > size:
			for start := 0; start < len(g); start += size {
				batches = append(batches, g[start:min(start+size, len(g))])
			}
		case len(current)+len(g) <= size:
			current = append(current, g...)
		default:
			batches = append(batches, current)
			current = append([]models.PersonMention(nil), g...)
		}
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}
