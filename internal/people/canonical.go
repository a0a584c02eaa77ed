package people

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// variantScore prefers longer spellings and, by two points, spellings with
// diacritics over their ASCII transliterations.
func variantScore(value string) int {
	score := utf8.RuneCountInString(value)
	for _, r := range value {
		if r >= utf8.RuneSelf {
			return score + 2
		}
	}
	return score
}

// pickCanonical returns the highest scoring distinct non-empty value and the
// remaining distinct values sorted. Ties go to the lexicographically smallest.
func pickCanonical(values []string) (string, []string) {
	seen := make(map[string]bool)
	var distinct []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		distinct = append(distinct, v)
	}
	if len(distinct) == 0 {
		return "", nil
	}

	sort.Slice(distinct, func(i, j int) bool {
		si, sj := variantScore(distinct[i]), variantScore(distinct[j])
		if si != sj {
			return si > sj
		}
		return distinct[i] < distinct[j]
	})

	variants := append([]string(nil), distinct[1:]...)
	sort.Strings(variants)
	return distinct[0], variants
}

// displayName renders the single name, or given names, particles and family name
func displayName(given, particles, family, single string) string {
	if single != "" {
		return single
	}
	var parts []string
	for _, p := range []string{given, particles, family} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}
