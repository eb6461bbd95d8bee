// Package normalize is the single chokepoint for value normalization and
// placeholder detection. Every comparison in change detection and identity
// matching goes through it, so placeholder noise ("TBD" -> "TBD") can never
// register as a change.
package normalize

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// placeholders are values that carry no information. Matched
// case-insensitively after whitespace collapsing.
var placeholders = map[string]struct{}{
	"":                  {},
	"tbd":               {},
	"unknown":           {},
	"n/a":               {},
	"na":                {},
	"none":              {},
	"pending":           {},
	"to be determined":  {},
	"to be confirmed":   {},
}

var (
	spaceRun    = regexp.MustCompile(`\s+`)
	punctRun    = regexp.MustCompile(`[,;:]+\s*`)
	nonWord     = regexp.MustCompile(`[^\p{L}\p{N}\s]`)
	legalSuffix = regexp.MustCompile(`\b(inc|llc|ltd|corp|corporation|company|co)\b`)
)

// Normalize trims and collapses whitespace and maps the placeholder
// vocabulary to absent. ok is false when the value carries no information.
func Normalize(v string) (string, bool) {
	v = strings.TrimSpace(v)
	v = spaceRun.ReplaceAllString(v, " ")
	if _, isPlaceholder := placeholders[strings.ToLower(v)]; isPlaceholder {
		return "", false
	}
	return v, true
}

// ForComparison normalizes for equality checks only: on top of Normalize it
// lowercases, NFC-folds, unifies dash variants, and canonicalizes
// punctuation runs. Not suitable for display.
func ForComparison(v string) (string, bool) {
	n, ok := Normalize(v)
	if !ok {
		return "", false
	}
	n = strings.ToLower(n)
	n = norm.NFC.String(n)
	n = strings.NewReplacer("–", "-", "—", "-").Replace(n)
	n = punctRun.ReplaceAllString(n, ", ")
	return n, true
}

// Equal reports whether two values are semantically equal: both absent is
// equal, exactly one absent is not, otherwise the comparison forms must
// match.
func Equal(a, b string) bool {
	na, okA := ForComparison(a)
	nb, okB := ForComparison(b)
	if !okA && !okB {
		return true
	}
	if !okA || !okB {
		return false
	}
	return na == nb
}

// IsMeaningful reports whether a value carries information after
// normalization.
func IsMeaningful(v string) bool {
	_, ok := Normalize(v)
	return ok
}

// Name normalizes a person name for identity comparison: lowercase, strip
// punctuation, collapse whitespace.
func Name(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = nonWord.ReplaceAllString(n, "")
	n = spaceRun.ReplaceAllString(n, " ")
	return strings.TrimSpace(n)
}

// Employer normalizes an employer name like Name, additionally stripping
// legal-entity suffixes (inc, llc, ltd, corp, co).
func Employer(employer string) string {
	n := Name(employer)
	n = legalSuffix.ReplaceAllString(n, "")
	n = spaceRun.ReplaceAllString(n, " ")
	return strings.TrimSpace(n)
}

// TokenList normalizes a list into sorted, deduplicated comparison forms.
// Used for network-scoped list fields (availability windows, screener
// answers) where order and formatting noise must not look like change.
func TokenList(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		n, ok := ForComparison(item)
		if !ok {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
