package source

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	pricePattern  = regexp.MustCompile(`\(\s*€\s*\d+[.-]*\s*\)|\s*€\s*\d+[.-]*\s*`)
	digitsPattern = regexp.MustCompile(`\d+`)
	// "a`" is a typesetting artifact left over from the document export
	markerPattern = regexp.MustCompile("\\ba`\\s*")
)

// CleanText lifts the first euro price out of a raw catalog line and returns
// the remaining text with line breaks folded into sentence breaks.
func CleanText(raw string) (string, *int64) {
	var price *int64
	if m := pricePattern.FindString(raw); m != "" {
		if digits := digitsPattern.FindString(m); digits != "" {
			if v, err := strconv.ParseInt(digits, 10, 64); err == nil {
				price = &v
			}
		}
	}

	text := pricePattern.ReplaceAllString(raw, "")
	text = markerPattern.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "\n", ". ")
	text = strings.Join(strings.Fields(text), " ")

	return text, price
}
