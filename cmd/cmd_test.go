package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/expert-registry/internal/ingest"
	"github.com/sells-group/expert-registry/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	var buf bytes.Buffer
	formatRunsList(&buf, []model.ScanRun{
		{
			ID:                 "run-1",
			Status:             model.ScanCompleted,
			StartedAt:          time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
			MessagesConsidered: 5,
			MessagesProcessed:  4,
			MessagesSkipped:    1,
			ExpertsAdded:       3,
		},
	})

	out := buf.String()
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "2026-03-01T09:00:00Z")
}

func TestFormatExpertsList(t *testing.T) {
	var buf bytes.Buffer
	formatExpertsList(&buf, []model.ExpertRecord{
		{
			ID:                "exp-1",
			CanonicalName:     "Jane Doe",
			CanonicalEmployer: "Acme Corp",
			Status:            model.StatusRecommended,
			ScreeningGrade:    "strong",
		},
	})

	out := buf.String()
	assert.Contains(t, out, "Jane Doe")
	assert.Contains(t, out, "Acme Corp")
	assert.Contains(t, out, "strong")
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, &ingest.Result{
		Summary: model.IngestSummary{AddedCount: 1, UpdatedCount: 1, ExtractedCount: 2},
		Changes: model.ChangeSet{
			Added: []model.AddedEntry{{ExpertID: "exp-1", ExpertName: "Jane Doe"}},
			Updated: []model.UpdatedEntry{{
				ExpertID:   "exp-2",
				ExpertName: "Bob Lee",
				Changes:    []model.FieldChange{{Field: "employer", Previous: "Acme", New: "Initech"}},
			}},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "Added 1, updated 1")
	assert.Contains(t, out, "+ Jane Doe")
	assert.Contains(t, out, `~ Bob Lee: employer: "Acme" -> "Initech"`)
}

func TestPrintSummary_NoOp(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, &ingest.Result{
		Summary: model.IngestSummary{
			ExtractedCount: 1,
			IsNoOp:         true,
			Notes:          []string{"no changes: 1 extracted profile(s) already known"},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "No changes.")
	assert.Contains(t, out, "already known")
}

func TestReadRoster_CSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.csv")
	csv := "name,employer,title,status\nJane Doe,Acme Corp,CFO,recommended\nBob Lee,Initech,,declined\nAnn Wu\n"
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o644))

	experts, err := readRoster(path, "proj-1")
	require.NoError(t, err)
	require.Len(t, experts, 3)

	assert.Equal(t, "Jane Doe", experts[0].CanonicalName)
	assert.Equal(t, "Acme Corp", experts[0].CanonicalEmployer)
	assert.Equal(t, model.StatusRecommended, experts[0].Status)

	assert.Equal(t, model.StatusDeclined, experts[1].Status)

	// short row: name only, status defaults
	assert.Equal(t, "Ann Wu", experts[2].CanonicalName)
	assert.Equal(t, model.StatusRecommended, experts[2].Status)
	assert.Equal(t, "proj-1", experts[2].ProjectID)
}

func TestReadRoster_XLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.xlsx")

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Roster")
	require.NoError(t, err)
	header := sheet.AddRow()
	for _, h := range []string{"Name", "Employer", "Title", "Status"} {
		header.AddCell().SetString(h)
	}
	row := sheet.AddRow()
	for _, v := range []string{"Jane Doe", "Acme Corp", "CFO", "pending"} {
		row.AddCell().SetString(v)
	}
	require.NoError(t, f.Save(path))

	experts, err := readRoster(path, "proj-1")
	require.NoError(t, err)
	require.Len(t, experts, 1)
	assert.Equal(t, "Jane Doe", experts[0].CanonicalName)
	assert.Equal(t, model.StatusPending, experts[0].Status)
}

func TestReadRoster_MissingFile(t *testing.T) {
	_, err := readRoster(filepath.Join(t.TempDir(), "absent.csv"), "proj-1")
	require.Error(t, err)
}
