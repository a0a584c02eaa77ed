package people

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/mvc24/bibliopa/internal/models"
)

// ReviewReason explains why a mention was held back from grouping
type ReviewReason string

const (
	ReasonAmbiguousIdentity ReviewReason = "ambiguous_identity"
	ReasonNoUsableName      ReviewReason = "no_usable_name"
)

// ReviewItem is a mention routed to manual review instead of a group
type ReviewItem struct {
	Reason   ReviewReason         `json:"reason"`
	GroupKey string               `json:"group_key"`
	Mention  models.PersonMention `json:"mention"`
}

// Result is the output of canonicalization
type Result struct {
	People       []models.CanonicalPerson `json:"people"`
	Associations []models.BookPerson      `json:"associations"`
	Review       []ReviewItem             `json:"review"`
}

// Engine groups person mentions and picks canonical spellings
type Engine struct {
	detector OrganisationDetector
}

func NewEngine(organisationKeywords []string) *Engine {
	return &Engine{detector: NewOrganisationDetector(organisationKeywords)}
}

type group struct {
	unifiedID string
	members   []int
}

// Canonicalize groups mentions that carry a unified id by that id, and
// groups unassigned mentions by GroupKey under a derived id. Ambiguous
// mentions and mentions without a usable name are never merged; they go to
// Review and appear in Associations with their identity left unresolved.
// Association rows keep the input order of mentions.
func (e *Engine) Canonicalize(mentions []models.PersonMention) Result {
	groups := make(map[string]*group)
	var order []string
	assigned := make([]string, len(mentions))

	var res Result

	// ids handed out so far, seeded with the ones from the dedup service
	taken := make(map[string]bool)
	for _, m := range mentions {
		if id, ok := m.Identity.ID(); ok {
			taken[id] = true
		}
	}
	derived := make(map[string]string)

	add := func(groupID string, i int) {
		g, ok := groups[groupID]
		if !ok {
			g = &group{unifiedID: groupID}
			groups[groupID] = g
			order = append(order, groupID)
		}
		g.members = append(g.members, i)
		assigned[i] = groupID
	}

	for i, m := range mentions {
		switch {
		case m.Identity.IsAmbiguous():
			res.Review = append(res.Review, ReviewItem{Reason: ReasonAmbiguousIdentity, GroupKey: GroupKey(m), Mention: m})
		case m.Identity.IsResolved():
			id, _ := m.Identity.ID()
			add(id, i)
		case !HasUsableName(m):
			res.Review = append(res.Review, ReviewItem{Reason: ReasonNoUsableName, GroupKey: GroupKey(m), Mention: m})
		default:
			key := GroupKey(m)
			id, ok := derived[key]
			if !ok {
				id = derivedID(key, taken)
				derived[key] = id
			}
			add(id, i)
		}
	}

	sort.Strings(order)
	res.People = make([]models.CanonicalPerson, 0, len(order))
	for _, id := range order {
		res.People = append(res.People, e.canonicalize(groups[id], mentions))
	}

	res.Associations = make([]models.BookPerson, 0, len(mentions))
	for i, m := range mentions {
		row := models.BookPerson{
			CompositeID:    m.BookCompositeID,
			SourceFilename: m.SourceFilename,
			Identity:       m.Identity,
			DisplayName:    m.DisplayName,
			FamilyName:     m.FamilyName,
			GivenNames:     m.GivenNames,
			NameParticles:  m.NameParticles,
			SingleName:     m.SingleName,
			SortOrder:      m.SortOrder,
			Roles:          m.Roles,
		}
		if assigned[i] != "" {
			row.Identity = models.Resolved(assigned[i])
		}
		res.Associations = append(res.Associations, row)
	}

	slog.Info("Canonicalized people",
		"mentions", len(mentions),
		"people", len(res.People),
		"review", len(res.Review))

	return res
}

// derivedID slugs the group key and appends a counter while it collides
// with an id assigned by the dedup service or another derived id. The
// returned id is marked as taken.
func derivedID(key string, taken map[string]bool) string {
	base := slugify(key)
	if base == "" {
		base = "person"
	}
	id := base
	for n := 2; taken[id]; n++ {
		id = fmt.Sprintf("%s_%d", base, n)
	}
	taken[id] = true
	return id
}

func (e *Engine) canonicalize(g *group, mentions []models.PersonMention) models.CanonicalPerson {
	p := models.CanonicalPerson{UnifiedID: g.unifiedID, MentionCount: len(g.members)}

	var family, given, particles, single []string
	for _, i := range g.members {
		m := mentions[i]
		family = append(family, m.FamilyName)
		given = append(given, m.GivenNames)
		particles = append(particles, m.NameParticles)
		single = append(single, m.SingleName)
		if e.detector.IsOrganisation(m) {
			p.IsOrganisation = true
		}
	}

	if len(g.members) == 1 {
		m := mentions[g.members[0]]
		p.FamilyName = strings.TrimSpace(m.FamilyName)
		p.GivenNames = strings.TrimSpace(m.GivenNames)
		p.NameParticles = strings.TrimSpace(m.NameParticles)
		p.SingleName = strings.TrimSpace(m.SingleName)
	} else {
		p.FamilyName, p.Variants.Family = pickCanonical(family)
		p.GivenNames, p.Variants.Given = pickCanonical(given)
		p.NameParticles, p.Variants.Particles = pickCanonical(particles)
		p.SingleName, p.Variants.Single = pickCanonical(single)
	}

	p.DisplayName = displayName(p.GivenNames, p.NameParticles, p.FamilyName, p.SingleName)
	if p.DisplayName == "" {
		p.DisplayName = strings.TrimSpace(mentions[g.members[0]].DisplayName)
	}
	return p
}
