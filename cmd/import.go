package main

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/expert-registry/internal/model"
)

var (
	importProject string
	importCSVPath string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import an expert roster from CSV or XLSX",
	Long:  "Bulk-loads experts from a spreadsheet with columns: name, employer, title, status. The format is inferred from the file extension.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		project, err := projectID(importProject)
		if err != nil {
			return err
		}

		experts, err := readRoster(importCSVPath, project)
		if err != nil {
			return err
		}
		if len(experts) == 0 {
			return eris.New("no rows to import")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.ImportExperts(ctx, experts)
		if err != nil {
			return eris.Wrap(err, "import experts")
		}

		zap.L().Info("import complete",
			zap.Int("imported", n),
			zap.String("csv", importCSVPath),
			zap.String("project_id", project),
		)
		return nil
	},
}

func readRoster(path, project string) ([]model.ExpertRecord, error) {
	var rows [][]string
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		rows, err = readXLSXRows(path)
	default:
		rows, err = readCSVRows(path)
	}
	if err != nil {
		return nil, err
	}
	return rosterFromRows(rows, project), nil
}

func readCSVRows(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open csv %s", path)
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var rows [][]string
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "read csv")
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func readXLSXRows(path string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open xlsx %s", path)
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("xlsx %s has no sheets", path)
	}

	var rows [][]string
	for _, row := range f.Sheets[0].Rows {
		cells := make([]string, len(row.Cells))
		for i, cell := range row.Cells {
			cells[i] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

func rosterFromRows(rows [][]string, project string) []model.ExpertRecord {
	var experts []model.ExpertRecord
	for i, row := range rows {
		// tolerate a header row
		if i == 0 && len(row) > 0 && strings.EqualFold(row[0], "name") {
			continue
		}
		if len(row) == 0 || row[0] == "" {
			continue
		}

		rec := model.ExpertRecord{
			ProjectID:     project,
			CanonicalName: row[0],
			Status:        model.StatusRecommended,
		}
		if len(row) > 1 {
			rec.CanonicalEmployer = row[1]
		}
		if len(row) > 2 {
			rec.CanonicalTitle = row[2]
		}
		if len(row) > 3 && row[3] != "" {
			rec.Status = model.ExpertStatus(row[3])
		}
		experts = append(experts, rec)
	}
	return experts
}

func init() {
	importCmd.Flags().StringVar(&importProject, "project", "", "project ID (defaults to config)")
	importCmd.Flags().StringVar(&importCSVPath, "csv", "", "path to CSV file (required)")
	_ = importCmd.MarkFlagRequired("csv")
	rootCmd.AddCommand(importCmd)
}
