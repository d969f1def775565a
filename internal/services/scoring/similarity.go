package scoring

import (
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// normalizeReference upper-cases and strips the punctuation banks tend to
// inject into statement references.
func normalizeReference(s string) string {
	s = strings.ToUpper(s)
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "-", " ")
	s = strings.ReplaceAll(s, "/", " ")
	return strings.Join(strings.Fields(s), " ")
}

// tokenSetSimilarity compares two references as unordered token sets, so
// "PAYMENT INV1001 ACME" and "ACME INV1001" still score high. Each token is
// matched to its closest counterpart by Levenshtein ratio and the per-token
// bests are averaged in both directions.
func tokenSetSimilarity(a, b string) float64 {
	ta := strings.Fields(a)
	tb := strings.Fields(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	return (directionalSimilarity(ta, tb) + directionalSimilarity(tb, ta)) / 2
}

func directionalSimilarity(from, to []string) float64 {
	total := 0.0
	for _, tok := range from {
		best := 0.0
		for _, other := range to {
			r := levenshtein.RatioForStrings([]rune(tok), []rune(other), levenshtein.DefaultOptions)
			if r > best {
				best = r
			}
		}
		total += best
	}
	return total / float64(len(from))
}
