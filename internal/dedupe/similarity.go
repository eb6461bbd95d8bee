// Package dedupe implements identity resolution between expert records:
// a tiered similarity engine for finding duplicate candidates and a merge
// resolver that collapses two matched identities into one.
package dedupe

import (
	"sort"

	"github.com/agext/levenshtein"

	"github.com/sells-group/expert-registry/internal/model"
	"github.com/sells-group/expert-registry/internal/normalize"
)

// Tier labels how a candidate pair matched. Strong matches come from exact
// identity fields, medium from exact name with weaker corroboration, fuzzy
// from edit-distance similarity alone.
type Tier string

const (
	TierStrong Tier = "strong"
	TierMedium Tier = "medium"
	TierFuzzy  Tier = "fuzzy"
)

// Scores assigned per tier. These are fixed calibration constants, not
// tunables: downstream auto-merge thresholds are expressed against them.
const (
	scoreExactNameEmployer  = 0.95
	scoreExactNameDiffEmp   = 0.75
	scoreExactNameNoEmp     = 0.65
	fuzzyScoreFactor        = 0.6
	fuzzyNameThreshold      = 0.85
	fuzzyEmployerThreshold  = 0.8
	titleSimilarityBar      = 0.7
)

// Match is one duplicate candidate with its combined score.
type Match struct {
	Candidate *model.ExpertRecord
	Score     float64
	Tier      Tier
}

// Similarity returns 1 - levenshtein/maxLen over runes. Symmetric; equal
// strings score 1, either string empty scores 0.
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	la := len([]rune(a))
	lb := len([]rune(b))
	maxLen := la
	if lb > maxLen {
		maxLen = lb
	}
	dist := levenshtein.Distance(a, b, nil)
	return 1 - float64(dist)/float64(maxLen)
}

// Compare scores a single candidate against rec. The second return is false
// when no tier matched.
func Compare(rec, cand *model.ExpertRecord) (Match, bool) {
	nameA := normalize.Name(rec.CanonicalName)
	nameB := normalize.Name(cand.CanonicalName)
	empA := normalize.Employer(rec.CanonicalEmployer)
	empB := normalize.Employer(cand.CanonicalEmployer)

	if nameA != "" && nameA == nameB {
		// Tier 1: exact name and exact employer.
		if empA != "" && empA == empB {
			return Match{Candidate: cand, Score: scoreExactNameEmployer, Tier: TierStrong}, true
		}

		// Tier 2a: exact name, employer unknown on at least one side. Only
		// corroborated when titles agree (or neither record has one).
		if empA == "" || empB == "" {
			titleA := normalize.Name(rec.CanonicalTitle)
			titleB := normalize.Name(cand.CanonicalTitle)
			if (titleA == "" && titleB == "") || Similarity(titleA, titleB) > titleSimilarityBar {
				return Match{Candidate: cand, Score: scoreExactNameNoEmp, Tier: TierMedium}, true
			}
			return Match{}, false
		}

		// Tier 2b: exact name but both employers present and different.
		// Could be a job change, could be a namesake.
		return Match{Candidate: cand, Score: scoreExactNameDiffEmp, Tier: TierMedium}, true
	}

	// Tier 3: fuzzy name plus fuzzy employer.
	nameSim := Similarity(nameA, nameB)
	empSim := Similarity(empA, empB)
	if nameSim > fuzzyNameThreshold && empSim > fuzzyEmployerThreshold {
		return Match{Candidate: cand, Score: fuzzyScoreFactor * nameSim * empSim, Tier: TierFuzzy}, true
	}

	return Match{}, false
}

// FindCandidates scores rec against every other record in pool and returns
// the matches ordered by score descending. rec itself is skipped.
func FindCandidates(rec *model.ExpertRecord, pool []*model.ExpertRecord) []Match {
	var matches []Match
	for _, cand := range pool {
		if cand.ID == rec.ID {
			continue
		}
		if m, ok := Compare(rec, cand); ok {
			matches = append(matches, m)
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches
}
