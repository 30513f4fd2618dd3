package pipeline

import (
	"regexp"
	"strings"
)

// SimilarityFunc reports whether two extracted values name the same thing.
// Implementations must be symmetric.
type SimilarityFunc func(a, b string) bool

// suffixPattern matches common business entity suffixes.
var suffixPattern = regexp.MustCompile(`(?i)(,\s*|\s+)(inc\.?|llc\.?|ltd\.?|co\.?|corp\.?|corporation|company|llp|lp|pllc|pc|p\.?c\.?)$`)

var nonWordPattern = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// ContainsSimilarity is a case-insensitive containment check over
// normalized names: either side containing the other is a match. Empty
// names never match.
func ContainsSimilarity(a, b string) bool {
	na, nb := normalizeName(a), normalizeName(b)
	if na == "" || nb == "" {
		return false
	}
	return strings.Contains(na, nb) || strings.Contains(nb, na)
}

// normalizeName strips business suffixes and punctuation and lowercases
// the name.
func normalizeName(name string) string {
	name = strings.TrimSpace(name)
	stripped := strings.TrimSpace(suffixPattern.ReplaceAllString(name, ""))
	stripped = nonWordPattern.ReplaceAllString(strings.ToLower(stripped), " ")
	return strings.Join(strings.Fields(stripped), " ")
}

// Boost adds bonus to v, capped at 1.
func Boost(v, bonus float64) float64 {
	v += bonus
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}
