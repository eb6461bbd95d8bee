package changes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/expert-registry/internal/model"
)

func existingExpert() *model.ExpertRecord {
	return &model.ExpertRecord{
		ID:                "exp-1",
		ProjectID:         "proj-1",
		CanonicalName:     "Jane Smith",
		CanonicalEmployer: "Acme Capital",
		CanonicalTitle:    "CFO",
		Status:            model.StatusRecommended,
		ConflictStatus:    model.ConflictPending,
	}
}

func TestDetect_IdenticalProfileIsNoOp(t *testing.T) {
	profile := model.ExpertProfile{
		FullName:       "Jane Smith",
		Employer:       "acme  capital", // formatting noise only
		Title:          "CFO",
		ConflictStatus: model.ConflictPending,
	}
	d := Detect(existingExpert(), profile, nil)
	assert.True(t, d.IsEmpty())
}

func TestDetect_PlaceholderNeverOverwrites(t *testing.T) {
	profile := model.ExpertProfile{
		FullName: "Jane Smith",
		Employer: "TBD",
		Title:    "unknown",
	}
	d := Detect(existingExpert(), profile, nil)
	assert.True(t, d.IsEmpty())
}

func TestDetect_MaterialEmployerChange(t *testing.T) {
	profile := model.ExpertProfile{
		FullName: "Jane Smith",
		Employer: "Globex",
	}
	d := Detect(existingExpert(), profile, nil)
	require.NotNil(t, d.Patch.Employer)
	assert.Equal(t, "Globex", *d.Patch.Employer)
	require.Len(t, d.Changes, 1)
	assert.Equal(t, "employer", d.Changes[0].Field)
	assert.Equal(t, "Acme Capital", d.Changes[0].Previous)
	assert.Equal(t, "Globex", d.Changes[0].New)
}

func TestDetect_ConflictStatusResolved(t *testing.T) {
	// Later email resolves a pending conflict check.
	profile := model.ExpertProfile{
		FullName:       "Jane Smith",
		ConflictStatus: model.ConflictCleared,
	}
	d := Detect(existingExpert(), profile, nil)
	require.NotNil(t, d.Patch.ConflictStatus)
	assert.Equal(t, model.ConflictCleared, *d.Patch.ConflictStatus)
	require.Len(t, d.Changes, 1)
	assert.Equal(t, "conflict status", d.Changes[0].Field)
	assert.Equal(t, "pending", d.Changes[0].Previous)
	assert.Equal(t, "cleared", d.Changes[0].New)
}

func TestDetect_PinnedFieldUntouched(t *testing.T) {
	profile := model.ExpertProfile{
		FullName: "Jane Smith",
		Employer: "Globex",
		Title:    "CEO",
	}
	pinned := map[string]bool{FieldEmployer: true}
	d := Detect(existingExpert(), profile, pinned)
	assert.Nil(t, d.Patch.Employer)
	require.NotNil(t, d.Patch.Title)
	assert.Equal(t, "CEO", *d.Patch.Title)
}

func TestDetect_StatusFromCue(t *testing.T) {
	cases := []struct {
		cue    model.StatusCue
		expect model.ExpertStatus
		change bool
	}{
		{model.CueAvailable, model.StatusRecommended, false}, // already recommended
		{model.CueInterested, model.StatusRecommended, false},
		{model.CuePending, model.StatusPending, true},
		{model.CueDeclined, model.StatusDeclined, true},
		{model.CueConflict, model.StatusDeclined, true},
		{model.CueNotAFit, model.StatusDeclined, true},
		{model.CueNoLongerAvailable, model.StatusDeclined, true},
		{model.CueUnknown, "", false},
	}
	for _, tc := range cases {
		profile := model.ExpertProfile{FullName: "Jane Smith", StatusCue: tc.cue}
		d := Detect(existingExpert(), profile, nil)
		if tc.change {
			require.NotNil(t, d.Patch.Status, "cue %s", tc.cue)
			assert.Equal(t, tc.expect, *d.Patch.Status, "cue %s", tc.cue)
		} else {
			assert.Nil(t, d.Patch.Status, "cue %s", tc.cue)
		}
	}
}

func TestDetect_StatusPinned(t *testing.T) {
	profile := model.ExpertProfile{FullName: "Jane Smith", StatusCue: model.CueDeclined}
	d := Detect(existingExpert(), profile, map[string]bool{FieldStatus: true})
	assert.Nil(t, d.Patch.Status)
}

func TestAvailabilityChanged(t *testing.T) {
	// Order and formatting noise are not changes.
	assert.False(t, AvailabilityChanged("Mon 9am, Tue 2-4pm", []string{"tue 2-4pm", "MON 9AM"}))
	// Both sides empty or placeholder-only: never a change.
	assert.False(t, AvailabilityChanged("", nil))
	assert.False(t, AvailabilityChanged("TBD", []string{"unknown"}))
	// A real new window is a change.
	assert.True(t, AvailabilityChanged("Mon 9am", []string{"Mon 9am", "Wed 1pm"}))
	// Going from known to placeholder-only is a change in shape, reported
	// by the caller only when the new side is meaningful.
	assert.True(t, AvailabilityChanged("Mon 9am", nil))
}

func TestScreenerChanged(t *testing.T) {
	stored := `[{"question":"Years in industry?","answer":"10 years"}]`

	// Same answer, different formatting: no change.
	assert.False(t, ScreenerChanged(stored, []model.ScreenerResponse{{Answer: "10  Years"}}))
	// Additional answer: change.
	assert.True(t, ScreenerChanged(stored, []model.ScreenerResponse{
		{Answer: "10 years"},
		{Answer: "Yes, hands-on"},
	}))
	// Different answer: change.
	assert.True(t, ScreenerChanged(stored, []model.ScreenerResponse{{Answer: "15 years"}}))
	// Both empty: no change. Unparseable stored JSON counts as empty.
	assert.False(t, ScreenerChanged("", nil))
	assert.False(t, ScreenerChanged("{not json", nil))
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "availability (AlphaSights)", Label(FieldAvailability, "AlphaSights"))
	assert.Equal(t, "availability", Label(FieldAvailability, ""))
	assert.Equal(t, "availability", Label(FieldAvailability, "unknown"))
	assert.Equal(t, "conflict ID", Label(FieldConflictID, ""))
}
