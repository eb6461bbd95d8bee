// Package export writes a project's roster to XLSX or CSV for sharing
// outside the registry.
package export

import (
	"context"
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/expert-registry/internal/model"
	"github.com/sells-group/expert-registry/internal/store"
)

var rosterHeader = []string{
	"Name", "Employer", "Title", "Status",
	"Conflict Status", "Conflict ID",
	"Screening Grade", "Screening Score", "Screening Rationale",
	"Sources", "Created", "Updated",
}

// Exporter renders rosters.
type Exporter struct {
	store store.Store
}

// New builds an exporter.
func New(s store.Store) *Exporter {
	return &Exporter{store: s}
}

// ToXLSX writes the project roster to an XLSX workbook at path.
func (e *Exporter) ToXLSX(ctx context.Context, projectID, path string) error {
	rows, err := e.rosterRows(ctx, projectID)
	if err != nil {
		return err
	}

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Experts")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range rosterHeader {
		header.AddCell().SetString(h)
	}

	for _, r := range rows {
		row := sheet.AddRow()
		for _, cell := range r {
			row.AddCell().SetString(cell)
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save xlsx %s", path)
	}

	zap.L().Info("roster exported",
		zap.String("project_id", projectID),
		zap.String("path", path),
		zap.Int("experts", len(rows)),
		zap.String("format", "xlsx"))
	return nil
}

// ToCSV writes the project roster as CSV at path.
func (e *Exporter) ToCSV(ctx context.Context, projectID, path string) error {
	rows, err := e.rosterRows(ctx, projectID)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	if err := w.Write(rosterHeader); err != nil {
		return eris.Wrap(err, "export: write header")
	}
	for _, r := range rows {
		if err := w.Write(r); err != nil {
			return eris.Wrap(err, "export: write row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "export: flush csv")
	}

	zap.L().Info("roster exported",
		zap.String("project_id", projectID),
		zap.String("path", path),
		zap.Int("experts", len(rows)),
		zap.String("format", "csv"))
	return nil
}

func (e *Exporter) rosterRows(ctx context.Context, projectID string) ([][]string, error) {
	experts, err := e.store.ListExperts(ctx, store.ExpertFilter{ProjectID: projectID})
	if err != nil {
		return nil, eris.Wrap(err, "export: list experts")
	}

	rows := make([][]string, 0, len(experts))
	for _, expert := range experts {
		n, err := e.store.CountSources(ctx, expert.ID)
		if err != nil {
			return nil, eris.Wrapf(err, "export: count sources for %s", expert.ID)
		}
		rows = append(rows, rosterRow(expert, n))
	}
	return rows, nil
}

func rosterRow(e model.ExpertRecord, sourceCount int) []string {
	score := ""
	if e.ScreeningGrade != "" {
		score = strconv.Itoa(e.ScreeningScore)
	}
	return []string{
		e.CanonicalName,
		e.CanonicalEmployer,
		e.CanonicalTitle,
		string(e.Status),
		string(e.ConflictStatus),
		e.ConflictID,
		e.ScreeningGrade,
		score,
		e.ScreeningRationale,
		strconv.Itoa(sourceCount),
		e.CreatedAt.UTC().Format(time.RFC3339),
		e.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
