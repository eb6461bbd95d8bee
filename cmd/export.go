package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/expert-registry/internal/export"
)

var (
	exportProject string
	exportFormat  string
	exportOut     string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the project roster",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		project, err := projectID(exportProject)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		out := exportOut
		if out == "" {
			out = "roster." + exportFormat
		}

		exporter := export.New(st)
		switch exportFormat {
		case "xlsx":
			err = exporter.ToXLSX(ctx, project, out)
		case "csv":
			err = exporter.ToCSV(ctx, project, out)
		default:
			return eris.Errorf("unsupported export format: %s", exportFormat)
		}
		if err != nil {
			return eris.Wrap(err, "export")
		}

		fmt.Fprintf(os.Stdout, "Roster written to %s\n", out)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportProject, "project", "", "project ID (defaults to config)")
	exportCmd.Flags().StringVar(&exportFormat, "format", "xlsx", "output format: xlsx or csv")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output path (defaults to roster.<format>)")
	rootCmd.AddCommand(exportCmd)
}
