// Package changes implements conservative change detection for ingestion.
// A field counts as updated only when it materially changed: placeholder
// values never overwrite real data, user-pinned fields are never touched,
// and values that normalize to the same thing are never reported.
package changes

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/sells-group/expert-registry/internal/model"
	"github.com/sells-group/expert-registry/internal/normalize"
)

// Field keys used for pinning and change records.
const (
	FieldEmployer       = "employer"
	FieldTitle          = "title"
	FieldConflictStatus = "conflictStatus"
	FieldConflictID     = "conflictId"
	FieldStatus         = "status"
	FieldAvailability   = "availability"
	FieldScreener       = "screenerResponses"
)

var displayNames = map[string]string{
	FieldEmployer:       "employer",
	FieldTitle:          "title",
	FieldConflictStatus: "conflict status",
	FieldConflictID:     "conflict ID",
	FieldStatus:         "status",
	FieldAvailability:   "availability",
	FieldScreener:       "screener responses",
}

// Label formats a field name for change summaries. The network qualifier is
// appended only when it carries information.
func Label(field, network string) string {
	name, ok := displayNames[field]
	if !ok {
		name = field
	}
	if normalize.IsMeaningful(network) {
		return name + " (" + network + ")"
	}
	return name
}

// Diff is the outcome of comparing one extracted profile against the
// canonical record: the store mutations to apply and the human-readable
// change entries backing them.
type Diff struct {
	Patch   model.Patch
	Changes []model.FieldChange
}

// IsEmpty reports whether the diff carries neither mutations nor entries.
func (d *Diff) IsEmpty() bool {
	return d.Patch.IsZero() && len(d.Changes) == 0
}

// cueStatus maps an explicit email status cue to a registry status.
// CueUnknown maps to nothing: absence of signal is never a change.
var cueStatus = map[model.StatusCue]model.ExpertStatus{
	model.CueAvailable:         model.StatusRecommended,
	model.CueInterested:        model.StatusRecommended,
	model.CuePending:           model.StatusPending,
	model.CueDeclined:          model.StatusDeclined,
	model.CueConflict:          model.StatusDeclined,
	model.CueNotAFit:           model.StatusDeclined,
	model.CueNoLongerAvailable: model.StatusDeclined,
}

// StatusFromCue maps a cue to the status it implies. ok is false for
// unknown or unmapped cues.
func StatusFromCue(cue model.StatusCue) (model.ExpertStatus, bool) {
	s, ok := cueStatus[cue]
	return s, ok
}

// Detect compares an extracted profile against the existing canonical
// record and returns the accepted global-field mutations. pinned holds
// field keys a human has edited; those are skipped unconditionally.
func Detect(existing *model.ExpertRecord, profile model.ExpertProfile, pinned map[string]bool) Diff {
	var d Diff

	if accept(existing.CanonicalEmployer, profile.Employer, FieldEmployer, pinned) {
		v := profile.Employer
		d.Patch.Employer = &v
		d.Changes = append(d.Changes, model.FieldChange{
			Field:    Label(FieldEmployer, ""),
			Previous: existing.CanonicalEmployer,
			New:      v,
		})
	}

	if accept(existing.CanonicalTitle, profile.Title, FieldTitle, pinned) {
		v := profile.Title
		d.Patch.Title = &v
		d.Changes = append(d.Changes, model.FieldChange{
			Field:    Label(FieldTitle, ""),
			Previous: existing.CanonicalTitle,
			New:      v,
		})
	}

	if accept(string(existing.ConflictStatus), string(profile.ConflictStatus), FieldConflictStatus, pinned) {
		v := profile.ConflictStatus
		d.Patch.ConflictStatus = &v
		d.Changes = append(d.Changes, model.FieldChange{
			Field:    Label(FieldConflictStatus, ""),
			Previous: string(existing.ConflictStatus),
			New:      string(v),
		})
	}

	if accept(existing.ConflictID, profile.ConflictID, FieldConflictID, pinned) {
		v := profile.ConflictID
		d.Patch.ConflictID = &v
		d.Changes = append(d.Changes, model.FieldChange{
			Field:    Label(FieldConflictID, ""),
			Previous: existing.ConflictID,
			New:      v,
		})
	}

	if mapped, ok := StatusFromCue(profile.StatusCue); ok && !pinned[FieldStatus] {
		current := existing.Status
		if current == "" {
			current = model.StatusRecommended
		}
		if mapped != current {
			v := mapped
			d.Patch.Status = &v
			d.Changes = append(d.Changes, model.FieldChange{
				Field:    Label(FieldStatus, ""),
				Previous: string(current),
				New:      string(v),
			})
		}
	}

	return d
}

// accept applies the three gates for a global field update: the new value
// must carry information, differ semantically from the current one, and
// the field must not be pinned.
func accept(current, proposed, field string, pinned map[string]bool) bool {
	if !normalize.IsMeaningful(proposed) {
		return false
	}
	if normalize.Equal(current, proposed) {
		return false
	}
	return !pinned[field]
}

// AvailabilityChanged compares the stored comma-separated availability of
// the latest same-network source against newly extracted windows. Both
// sides are reduced to sorted deduplicated comparison-form token lists;
// two empty lists are never a change.
func AvailabilityChanged(existingCSV string, updated []string) bool {
	var existing []string
	if existingCSV != "" {
		for _, part := range strings.Split(existingCSV, ",") {
			existing = append(existing, strings.TrimSpace(part))
		}
	}

	a := normalize.TokenList(existing)
	b := normalize.TokenList(updated)
	if len(a) == 0 && len(b) == 0 {
		return false
	}
	return !tokenListsEqual(a, b)
}

// ScreenerChanged compares the stored screener-response JSON of the latest
// same-network source against newly extracted responses. Answers are
// compared as sorted normalized lists; more answers than before always
// counts as a change.
func ScreenerChanged(existingJSON string, updated []model.ScreenerResponse) bool {
	var existing []model.ScreenerResponse
	if existingJSON != "" {
		// Unparseable stored JSON is treated as no prior responses.
		_ = json.Unmarshal([]byte(existingJSON), &existing)
	}

	if len(existing) == 0 && len(updated) == 0 {
		return false
	}

	a := normalizeAnswers(existing)
	b := normalizeAnswers(updated)
	if len(b) > len(a) {
		return true
	}
	return !tokenListsEqual(a, b)
}

// normalizeAnswers keeps duplicate answers, unlike availability windows:
// the same answer given twice still counts toward the answer count.
func normalizeAnswers(responses []model.ScreenerResponse) []string {
	answers := make([]string, 0, len(responses))
	for _, r := range responses {
		if n, ok := normalize.ForComparison(r.Answer); ok {
			answers = append(answers, n)
		}
	}
	sort.Strings(answers)
	return answers
}

func tokenListsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
