package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/expert-registry/internal/model"
	"github.com/sells-group/expert-registry/internal/resilience"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func createTestExpert(t *testing.T, st *SQLiteStore, name, employer, title string) *model.ExpertRecord {
	t.Helper()
	e, err := st.CreateExpert(context.Background(), model.ExpertRecord{
		ProjectID:         "proj-1",
		CanonicalName:     name,
		CanonicalEmployer: employer,
		CanonicalTitle:    title,
	})
	require.NoError(t, err)
	return e
}

// --- Experts ---

func TestSQLite_CreateAndGetExpert(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	created := createTestExpert(t, st, "Jane Smith", "Acme", "CFO")
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, model.StatusRecommended, created.Status)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := st.GetExpert(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jane Smith", got.CanonicalName)
	assert.Equal(t, "Acme", got.CanonicalEmployer)
	assert.Equal(t, "CFO", got.CanonicalTitle)
}

func TestSQLite_GetExpert_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetExpert(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.True(t, errors.Is(err, resilience.ErrNotFound))
}

func TestSQLite_ListExperts_Filters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	createTestExpert(t, st, "Jane Smith", "Acme", "CFO")
	b := createTestExpert(t, st, "Robert Jones", "Globex", "CTO")

	declined := model.StatusDeclined
	require.NoError(t, st.ApplyPatch(ctx, b.ID, model.Patch{Status: &declined}))

	all, err := st.ListExperts(ctx, ExpertFilter{ProjectID: "proj-1"})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	onlyDeclined, err := st.ListExperts(ctx, ExpertFilter{ProjectID: "proj-1", Status: model.StatusDeclined})
	require.NoError(t, err)
	require.Len(t, onlyDeclined, 1)
	assert.Equal(t, "Robert Jones", onlyDeclined[0].CanonicalName)

	other, err := st.ListExperts(ctx, ExpertFilter{ProjectID: "proj-2"})
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestSQLite_ApplyPatch(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	e := createTestExpert(t, st, "Jane Smith", "Acme", "")

	employer := "Globex"
	title := "CEO"
	cleared := model.ConflictCleared
	require.NoError(t, st.ApplyPatch(ctx, e.ID, model.Patch{
		Employer:       &employer,
		Title:          &title,
		ConflictStatus: &cleared,
	}))

	got, err := st.GetExpert(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "Globex", got.CanonicalEmployer)
	assert.Equal(t, "CEO", got.CanonicalTitle)
	assert.Equal(t, model.ConflictCleared, got.ConflictStatus)
	assert.True(t, got.UpdatedAt.After(got.CreatedAt) || got.UpdatedAt.Equal(got.CreatedAt))
}

func TestSQLite_ApplyPatch_EmptyIsNoOp(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.ApplyPatch(context.Background(), "whatever", model.Patch{}))
}

func TestSQLite_ApplyPatch_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	employer := "Globex"
	err := st.ApplyPatch(context.Background(), "missing", model.Patch{Employer: &employer})
	require.Error(t, err)
	assert.True(t, errors.Is(err, resilience.ErrNotFound))
}

func TestSQLite_UpdateScreening(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	e := createTestExpert(t, st, "Jane Smith", "Acme", "CFO")
	require.NoError(t, st.UpdateScreening(ctx, e.ID, model.ScreeningResult{
		Grade:      model.GradeStrong,
		Score:      87,
		Rationale:  "deep operational experience",
		Confidence: model.ConfidenceHigh,
	}))

	got, err := st.GetExpert(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, string(model.GradeStrong), got.ScreeningGrade)
	assert.Equal(t, 87, got.ScreeningScore)
	assert.Equal(t, model.ConfidenceHigh, got.ScreeningConfidence)
}

func TestSQLite_DeleteExpert_CascadesDependents(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	e := createTestExpert(t, st, "Jane Smith", "Acme", "CFO")
	src, err := st.AppendSource(ctx, model.ExpertSource{ExpertID: e.ID, EmailID: "em-1", Name: "Jane Smith"})
	require.NoError(t, err)
	require.NoError(t, st.AppendProvenance(ctx, []model.FieldProvenance{
		{SourceID: src.ID, FieldName: "full_name", Excerpt: "Jane Smith, CFO at Acme", Confidence: model.ConfidenceHigh},
	}))
	require.NoError(t, st.PinField(ctx, e.ID, "employer"))

	require.NoError(t, st.DeleteExpert(ctx, e.ID))

	_, err = st.GetExpert(ctx, e.ID)
	assert.True(t, errors.Is(err, resilience.ErrNotFound))

	sources, err := st.ListSources(ctx, e.ID)
	require.NoError(t, err)
	assert.Empty(t, sources)

	pinned, err := st.PinnedFields(ctx, e.ID)
	require.NoError(t, err)
	assert.Empty(t, pinned)
}

func TestSQLite_ImportExperts_Upserts(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	n, err := st.ImportExperts(ctx, []model.ExpertRecord{
		{ID: "imp-1", ProjectID: "proj-1", CanonicalName: "Jane Smith", CanonicalEmployer: "Acme"},
		{ProjectID: "proj-1", CanonicalName: "Robert Jones"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Replaying with a changed row updates in place.
	n, err = st.ImportExperts(ctx, []model.ExpertRecord{
		{ID: "imp-1", ProjectID: "proj-1", CanonicalName: "Jane Smith", CanonicalEmployer: "Globex"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := st.GetExpert(ctx, "imp-1")
	require.NoError(t, err)
	assert.Equal(t, "Globex", got.CanonicalEmployer)

	all, err := st.ListExperts(ctx, ExpertFilter{ProjectID: "proj-1"})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

// --- Sources and merge atomicity ---

func TestSQLite_AppendAndListSources(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	e := createTestExpert(t, st, "Jane Smith", "Acme", "CFO")
	_, err := st.AppendSource(ctx, model.ExpertSource{
		ExpertID:     e.ID,
		EmailID:      "em-1",
		Network:      "AlphaSights",
		Name:         "Jane Smith",
		Employer:     "Acme",
		Availability: "Mon 9am, Tue 2-4pm",
		StatusCue:    model.CueAvailable,
	})
	require.NoError(t, err)

	sources, err := st.ListSources(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "AlphaSights", sources[0].Network)
	assert.Equal(t, model.CueAvailable, sources[0].StatusCue)

	n, err := st.CountSources(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLite_ReassignSourcesAndDelete(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	survivor := createTestExpert(t, st, "Jane Smith", "Acme", "CFO")
	retired := createTestExpert(t, st, "Jane Smith", "", "")
	_, err := st.AppendSource(ctx, model.ExpertSource{ExpertID: retired.ID, EmailID: "em-1", Name: "Jane Smith"})
	require.NoError(t, err)
	_, err = st.AppendSource(ctx, model.ExpertSource{ExpertID: survivor.ID, EmailID: "em-2", Name: "Jane Smith"})
	require.NoError(t, err)

	require.NoError(t, st.ReassignSourcesAndDelete(ctx, survivor.ID, retired.ID))

	_, err = st.GetExpert(ctx, retired.ID)
	assert.True(t, errors.Is(err, resilience.ErrNotFound))

	sources, err := st.ListSources(ctx, survivor.ID)
	require.NoError(t, err)
	assert.Len(t, sources, 2)
}

func TestSQLite_ReassignSourcesAndDelete_MissingRetired(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	survivor := createTestExpert(t, st, "Jane Smith", "Acme", "CFO")
	err := st.ReassignSourcesAndDelete(ctx, survivor.ID, "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, resilience.ErrNotFound))
}

// --- Provenance and pins ---

func TestSQLite_ProvenanceRoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	e := createTestExpert(t, st, "Jane Smith", "Acme", "CFO")
	src, err := st.AppendSource(ctx, model.ExpertSource{ExpertID: e.ID, EmailID: "em-1", Name: "Jane Smith"})
	require.NoError(t, err)

	require.NoError(t, st.AppendProvenance(ctx, []model.FieldProvenance{
		{SourceID: src.ID, FieldName: "employer", Excerpt: "currently at Acme", Confidence: model.ConfidenceHigh},
		{SourceID: src.ID, FieldName: "full_name", Excerpt: "Jane Smith", Confidence: model.ConfidenceHigh},
	}))

	rows, err := st.ListProvenance(ctx, src.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "employer", rows[0].FieldName)
	assert.Equal(t, "full_name", rows[1].FieldName)
}

func TestSQLite_PinField_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	e := createTestExpert(t, st, "Jane Smith", "Acme", "CFO")
	require.NoError(t, st.PinField(ctx, e.ID, "employer"))
	require.NoError(t, st.PinField(ctx, e.ID, "employer"))
	require.NoError(t, st.PinField(ctx, e.ID, "title"))

	pinned, err := st.PinnedFields(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"employer": true, "title": true}, pinned)
}

// --- Emails and ingestion logs ---

func TestSQLite_CreateEmail(t *testing.T) {
	st := newTestSQLiteStore(t)

	e, err := st.CreateEmail(context.Background(), model.EmailRecord{
		ProjectID: "proj-1",
		RawText:   "Please find below three experts...",
		Network:   "Guidepoint",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID)
	assert.False(t, e.CreatedAt.IsZero())
}

func TestSQLite_IngestionLogRoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	log, err := st.CreateIngestionLog(ctx, model.IngestionLog{
		ProjectID: "proj-1",
		EmailID:   "em-1",
		Summary: model.IngestSummary{
			AddedCount:     2,
			ExtractedCount: 2,
		},
		Changes: model.ChangeSet{
			Added: []model.AddedEntry{
				{ExpertID: "e1", ExpertName: "Jane Smith"},
				{ExpertID: "e2", ExpertName: "Robert Jones"},
			},
		},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, log.ID)

	logs, err := st.ListIngestionLogs(ctx, "proj-1", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, 2, logs[0].Summary.AddedCount)
	require.Len(t, logs[0].Changes.Added, 2)
	assert.Equal(t, "Jane Smith", logs[0].Changes.Added[0].ExpertName)
}

// --- Scan runs and scanned messages ---

func TestSQLite_ScanRunLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateScanRun(ctx, "proj-1", 25)
	require.NoError(t, err)
	assert.Equal(t, model.ScanRunning, run.Status)
	assert.Equal(t, 25, run.MaxMessages)

	run.Status = model.ScanCompleted
	run.MessagesConsidered = 10
	run.MessagesProcessed = 7
	run.MessagesSkipped = 2
	run.MessagesFailed = 1
	run.ExpertsAdded = 5
	run.ErrorDetails = []string{"msg-9: extraction schema invalid"}
	require.NoError(t, st.FinalizeScanRun(ctx, run))
	require.NotNil(t, run.CompletedAt)

	got, err := st.GetScanRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ScanCompleted, got.Status)
	assert.Equal(t, 7, got.MessagesProcessed)
	assert.Equal(t, []string{"msg-9: extraction schema invalid"}, got.ErrorDetails)
	require.NotNil(t, got.CompletedAt)

	runs, err := st.ListScanRuns(ctx, ScanRunFilter{ProjectID: "proj-1"})
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestSQLite_ScannedMessages_Idempotency(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	receivedAt := time.Now().UTC().Add(-time.Hour)
	msg := model.ScannedMessage{
		ProjectID:         "proj-1",
		ProviderMessageID: "msg-1",
		Subject:           "3 experts for your project",
		Sender:            "team@alphasights.com",
		ReceivedAt:        &receivedAt,
		Status:            model.MessageProcessed,
	}
	require.NoError(t, st.RecordScannedMessage(ctx, msg))
	// Recording the same message again is a silent no-op.
	require.NoError(t, st.RecordScannedMessage(ctx, msg))

	seen, err := st.ScannedMessageIDs(ctx, "proj-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"msg-1": true}, seen)

	other, err := st.ScannedMessageIDs(ctx, "proj-2")
	require.NoError(t, err)
	assert.Empty(t, other)
}
