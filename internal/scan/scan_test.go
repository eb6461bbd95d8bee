package scan

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/expert-registry/internal/extract"
	"github.com/sells-group/expert-registry/internal/inbox"
	"github.com/sells-group/expert-registry/internal/ingest"
	"github.com/sells-group/expert-registry/internal/model"
	"github.com/sells-group/expert-registry/internal/store"
)

// nameExtractor fabricates one profile per email, using the first line of
// the body as the expert name.
type nameExtractor struct{}

func (nameExtractor) Extract(ctx context.Context, req extract.ExtractRequest) (*model.Extraction, error) {
	name := strings.TrimSpace(strings.SplitN(req.EmailText, "\n", 2)[0])
	return &model.Extraction{
		Profiles: []model.ExpertProfile{{FullName: name, OverallConfidence: model.ConfidenceHigh}},
	}, nil
}

// failingExtractor fails every call.
type failingExtractor struct{}

func (failingExtractor) Extract(ctx context.Context, req extract.ExtractRequest) (*model.Extraction, error) {
	return nil, errors.New("model unavailable")
}

// flakyExtractor behaves like nameExtractor except for one expert name,
// which always fails.
type flakyExtractor struct{ failName string }

func (f flakyExtractor) Extract(ctx context.Context, req extract.ExtractRequest) (*model.Extraction, error) {
	name := strings.TrimSpace(strings.SplitN(req.EmailText, "\n", 2)[0])
	if name == f.failName {
		return nil, errors.New("model unavailable")
	}
	return &model.Extraction{
		Profiles: []model.ExpertProfile{{FullName: name, OverallConfidence: model.ConfidenceHigh}},
	}, nil
}

// brokenInbox fails before producing any message.
type brokenInbox struct{}

func (brokenInbox) ListMessages(ctx context.Context, limit int, since *time.Time) ([]inbox.Message, error) {
	return nil, errors.New("auth expired")
}

func (brokenInbox) GetBody(ctx context.Context, id string) (string, error) {
	return "", errors.New("auth expired")
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func writeMessage(t *testing.T, dir string, msg inbox.Message, body string) {
	t.Helper()
	header, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, msg.ProviderID+".json"), header, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, msg.ProviderID+".txt"), []byte(body), 0o644))
}

func longBody(name string) string {
	return name + "\n" + strings.Repeat("details about the expert and the project context. ", 4)
}

func newCoordinator(t *testing.T, st *store.SQLiteStore, dir string, ex extract.Extractor, opts Options) *Coordinator {
	t.Helper()
	in, err := inbox.NewDir(dir)
	require.NoError(t, err)
	return New(st, in, ingest.New(st, ex, ingest.Options{}), opts)
}

func TestScan_ProcessesMessages(t *testing.T) {
	st := newTestStore(t)
	dir := t.TempDir()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	writeMessage(t, dir, inbox.Message{ProviderID: "m1", Sender: "a@alphasights.com", ReceivedAt: base}, longBody("Jane Doe"))
	writeMessage(t, dir, inbox.Message{ProviderID: "m2", Sender: "a@alphasights.com", ReceivedAt: base.Add(time.Hour)}, longBody("Bob Lee"))

	c := newCoordinator(t, st, dir, nameExtractor{}, Options{})
	run, err := c.Scan(context.Background(), "proj-1", 10)
	require.NoError(t, err)

	assert.Equal(t, model.ScanCompleted, run.Status)
	assert.Equal(t, 2, run.MessagesConsidered)
	assert.Equal(t, 2, run.MessagesProcessed)
	assert.Equal(t, 2, run.ExpertsAdded)
	assert.NotNil(t, run.CompletedAt)

	experts, err := st.ListExperts(context.Background(), store.ExpertFilter{ProjectID: "proj-1"})
	require.NoError(t, err)
	assert.Len(t, experts, 2)

	// one aggregated log, no per-email logs
	logs, err := st.ListIngestionLogs(context.Background(), "proj-1", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, 2, logs[0].Summary.AddedCount)
	assert.Empty(t, logs[0].EmailID)
}

func TestScan_RescanIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	dir := t.TempDir()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	writeMessage(t, dir, inbox.Message{ProviderID: "m1", ReceivedAt: base}, longBody("Jane Doe"))

	c := newCoordinator(t, st, dir, nameExtractor{}, Options{})
	first, err := c.Scan(context.Background(), "proj-1", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, first.MessagesProcessed)

	second, err := c.Scan(context.Background(), "proj-1", 10)
	require.NoError(t, err)
	assert.Equal(t, model.ScanCompleted, second.Status)
	assert.Zero(t, second.MessagesConsidered)
	assert.Zero(t, second.MessagesProcessed)
	assert.Zero(t, second.ExpertsAdded)

	experts, err := st.ListExperts(context.Background(), store.ExpertFilter{ProjectID: "proj-1"})
	require.NoError(t, err)
	assert.Len(t, experts, 1)
}

func TestScan_ShortBodySkippedWithoutExtraction(t *testing.T) {
	st := newTestStore(t)
	dir := t.TempDir()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	writeMessage(t, dir, inbox.Message{ProviderID: "short", ReceivedAt: base}, "thanks!")

	// the failing extractor proves extraction is never attempted
	c := newCoordinator(t, st, dir, failingExtractor{}, Options{})
	run, err := c.Scan(context.Background(), "proj-1", 10)
	require.NoError(t, err)

	assert.Equal(t, model.ScanCompleted, run.Status)
	assert.Equal(t, 1, run.MessagesConsidered)
	assert.Equal(t, 1, run.MessagesSkipped)
	assert.Zero(t, run.MessagesFailed)

	// skipped messages still get a marker so reruns never reconsider them
	seen, err := st.ScannedMessageIDs(context.Background(), "proj-1")
	require.NoError(t, err)
	assert.True(t, seen["short"])
}

func TestScan_PartialFailureStillCompletes(t *testing.T) {
	st := newTestStore(t)
	dir := t.TempDir()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	writeMessage(t, dir, inbox.Message{ProviderID: "m1", ReceivedAt: base}, longBody("Jane Doe"))

	c := newCoordinator(t, st, dir, failingExtractor{}, Options{})
	run, err := c.Scan(context.Background(), "proj-1", 10)
	require.NoError(t, err)

	assert.Equal(t, model.ScanCompleted, run.Status)
	assert.Equal(t, 1, run.MessagesFailed)
	require.Len(t, run.ErrorDetails, 1)
	assert.Contains(t, run.ErrorDetails[0], "m1")

	// the failed message is marked too; a rerun does not retry it
	second, err := c.Scan(context.Background(), "proj-1", 10)
	require.NoError(t, err)
	assert.Zero(t, second.MessagesConsidered)
}

func TestScan_MidBatchFailureContinues(t *testing.T) {
	st := newTestStore(t)
	dir := t.TempDir()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	names := []string{"Jane Doe", "Bob Lee", "Carl Ito", "Dana Fox", "Eve Marsh"}
	for i, name := range names {
		writeMessage(t, dir, inbox.Message{
			ProviderID: string(rune('1' + i)),
			ReceivedAt: base.Add(time.Duration(i) * time.Hour),
		}, longBody(name))
	}

	// the third message fails; the two after it must still be processed
	c := newCoordinator(t, st, dir, flakyExtractor{failName: "Carl Ito"}, Options{})
	run, err := c.Scan(context.Background(), "proj-1", 10)
	require.NoError(t, err)

	assert.Equal(t, model.ScanCompleted, run.Status)
	assert.Equal(t, 5, run.MessagesConsidered)
	assert.Equal(t, 4, run.MessagesProcessed)
	assert.Equal(t, 1, run.MessagesFailed)
	require.Len(t, run.ErrorDetails, 1)
	assert.Contains(t, run.ErrorDetails[0], "3")

	experts, err := st.ListExperts(context.Background(), store.ExpertFilter{ProjectID: "proj-1"})
	require.NoError(t, err)
	assert.Len(t, experts, 4)

	// every message carries a marker, including the failed one
	second, err := c.Scan(context.Background(), "proj-1", 10)
	require.NoError(t, err)
	assert.Zero(t, second.MessagesConsidered)
}

func TestScan_ListFailureFinalizesFailed(t *testing.T) {
	st := newTestStore(t)

	c := New(st, brokenInbox{}, ingest.New(st, nameExtractor{}, ingest.Options{}), Options{})
	run, err := c.Scan(context.Background(), "proj-1", 10)
	require.Error(t, err)

	require.NotNil(t, run)
	assert.Equal(t, model.ScanFailed, run.Status)

	persisted, err := st.GetScanRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ScanFailed, persisted.Status)
	assert.NotEmpty(t, persisted.ErrorDetails)
}

func TestScan_FilterExcludesMessages(t *testing.T) {
	st := newTestStore(t)
	dir := t.TempDir()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	writeMessage(t, dir, inbox.Message{ProviderID: "wanted", Sender: "a@alphasights.com", ReceivedAt: base}, longBody("Jane Doe"))
	writeMessage(t, dir, inbox.Message{ProviderID: "noise", Sender: "x@newsletter.com", ReceivedAt: base}, longBody("Spam Bot"))

	c := newCoordinator(t, st, dir, nameExtractor{}, Options{
		Filter: inbox.Filter{SenderDomains: []string{"alphasights.com"}},
	})
	run, err := c.Scan(context.Background(), "proj-1", 10)
	require.NoError(t, err)

	assert.Equal(t, 1, run.MessagesConsidered)

	// filtered-out messages carry no marker and stay eligible if the
	// filter changes later
	seen, err := st.ScannedMessageIDs(context.Background(), "proj-1")
	require.NoError(t, err)
	assert.False(t, seen["noise"])
}

func TestScan_MaxMessagesCap(t *testing.T) {
	st := newTestStore(t)
	dir := t.TempDir()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i, name := range []string{"Jane Doe", "Bob Lee", "Ann Wu"} {
		writeMessage(t, dir, inbox.Message{
			ProviderID: string(rune('a' + i)),
			ReceivedAt: base.Add(time.Duration(i) * time.Hour),
		}, longBody(name))
	}

	c := newCoordinator(t, st, dir, nameExtractor{}, Options{})
	run, err := c.Scan(context.Background(), "proj-1", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, run.MessagesConsidered)

	// the remaining message is picked up by the next run
	second, err := c.Scan(context.Background(), "proj-1", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, second.MessagesConsidered)
}

func TestScan_NetworkDetectedFromSender(t *testing.T) {
	st := newTestStore(t)
	dir := t.TempDir()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	writeMessage(t, dir, inbox.Message{ProviderID: "m1", Sender: "team@guidepoint.com", ReceivedAt: base}, longBody("Jane Doe"))

	c := newCoordinator(t, st, dir, nameExtractor{}, Options{})
	_, err := c.Scan(context.Background(), "proj-1", 10)
	require.NoError(t, err)

	experts, err := st.ListExperts(context.Background(), store.ExpertFilter{ProjectID: "proj-1"})
	require.NoError(t, err)
	require.Len(t, experts, 1)

	sources, err := st.ListSources(context.Background(), experts[0].ID)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "Guidepoint", sources[0].Network)
}
