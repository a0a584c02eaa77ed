package textmatch

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize returns the comparison key for a piece of catalog text:
// NFC composed, lowercased, with whitespace runs collapsed to one space.
func Normalize(text string) string {
	text = norm.NFC.String(text)
	text = strings.ToLower(text)
	return strings.Join(strings.Fields(text), " ")
}
