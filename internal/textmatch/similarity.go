package textmatch

import "math"

// Similarity scores two strings from 0 to 100 after normalizing both.
// The score is the indel ratio: 100 * (1 - d/(len(a)+len(b))) where d is the
// number of single-rune insertions and deletions needed to turn a into b.
func Similarity(a, b string) int {
	return Ratio(Normalize(a), Normalize(b))
}

// Ratio is Similarity for inputs that are already normalized keys
func Ratio(a, b string) int {
	if a == b {
		return 100
	}

	ra := []rune(a)
	rb := []rune(b)
	total := len(ra) + len(rb)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}

	distance := total - 2*longestCommonSubsequence(ra, rb)
	return int(math.Round((1 - float64(distance)/float64(total)) * 100))
}

// longestCommonSubsequence uses two rolling rows over the shorter input
func longestCommonSubsequence(a, b []rune) int {
	if len(b) > len(a) {
		a, b = b, a
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				curr[j] = prev[j-1] + 1
			case prev[j] >= curr[j-1]:
				curr[j] = prev[j]
			default:
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}
