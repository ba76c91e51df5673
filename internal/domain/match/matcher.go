// Package match scores payer names from bank notifications against
// passport holder names.
//
// Names are normalized first (accents stripped, case folded) so that
// "Bélanger" and "BELANGER" compare equal, then scored with a
// Levenshtein-based similarity percentage. Scores at or above 95 are exact;
// scores at or above the configured confidence threshold are fuzzy; anything
// below is rejected.
package match

import (
	"math"
	"strings"
	"unicode"

	"github.com/texttheater/golang-levenshtein/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ExactThreshold is the score at which a candidate counts as an exact match
const ExactThreshold = 95

// Class is the outcome of scoring one candidate
type Class int

const (
	Rejected Class = iota
	Fuzzy
	Exact
)

func (c Class) String() string {
	switch c {
	case Exact:
		return "exact"
	case Fuzzy:
		return "fuzzy"
	default:
		return "rejected"
	}
}

var stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))

// Normalize lowercases, trims and strips combining marks from a name.
// Idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(s string) string {
	decomposed, _, err := transform.String(stripAccents, s)
	if err != nil {
		// Transform only fails on invalid UTF-8; fall back to the raw string
		decomposed = s
	}
	return strings.ToLower(strings.TrimSpace(decomposed))
}

// Matcher scores normalized names against a confidence threshold
type Matcher struct {
	threshold int
}

// NewMatcher creates a matcher with the given fuzzy confidence threshold
// (percentage, typically 85)
func NewMatcher(threshold int) *Matcher {
	return &Matcher{threshold: threshold}
}

// Threshold returns the configured fuzzy confidence threshold
func (m *Matcher) Threshold() int {
	return m.threshold
}

// Score returns the similarity percentage in [0,100] between two names
// after normalization
func Score(a, b string) int {
	na := []rune(Normalize(a))
	nb := []rune(Normalize(b))
	if len(na) == 0 && len(nb) == 0 {
		return 100
	}

	ratio := levenshtein.RatioForStrings(na, nb, levenshtein.DefaultOptions)
	return int(math.Round(ratio * 100))
}

// Classify buckets a score: exact at 95 and above, fuzzy at the threshold
// and above, rejected below.
func (m *Matcher) Classify(score int) Class {
	switch {
	case score >= ExactThreshold:
		return Exact
	case score >= m.threshold:
		return Fuzzy
	default:
		return Rejected
	}
}
