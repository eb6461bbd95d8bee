package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/expert-registry/internal/model"
	"github.com/sells-group/expert-registry/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect scan run history",
}

// -- runs list --

var (
	runsListProject string
	runsListLimit   int
)

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scan runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		project, err := projectID(runsListProject)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runs, err := st.ListScanRuns(ctx, store.ScanRunFilter{
			ProjectID: project,
			Limit:     runsListLimit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No scan runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

func formatRunsList(w io.Writer, runs []model.ScanRun) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tSTARTED\tCONSIDERED\tPROCESSED\tSKIPPED\tFAILED\tADDED\tUPDATED\tMERGED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\n",
			r.ID, r.Status, r.StartedAt.UTC().Format(time.RFC3339),
			r.MessagesConsidered, r.MessagesProcessed, r.MessagesSkipped, r.MessagesFailed,
			r.ExpertsAdded, r.ExpertsUpdated, r.ExpertsMerged)
	}
	tw.Flush() //nolint:errcheck
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a scan run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetScanRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		out, err := json.MarshalIndent(run, "", "  ")
		if err != nil {
			return eris.Wrap(err, "runs show: marshal")
		}
		fmt.Fprintln(os.Stdout, string(out))
		return nil
	},
}

// -- runs log --

var (
	runsLogProject string
	runsLogLimit   int
)

var runsLogCmd = &cobra.Command{
	Use:   "log",
	Short: "Show recent ingestion change logs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		project, err := projectID(runsLogProject)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		logs, err := st.ListIngestionLogs(ctx, project, runsLogLimit)
		if err != nil {
			return eris.Wrap(err, "runs log")
		}

		if len(logs) == 0 {
			fmt.Fprintln(os.Stderr, "No ingestion logs found.")
			return nil
		}

		for _, l := range logs {
			s := l.Summary
			fmt.Fprintf(os.Stdout, "%s  +%d ~%d *%d ?%d",
				l.CreatedAt.UTC().Format(time.RFC3339),
				s.AddedCount, s.UpdatedCount, s.MergedCount, s.NeedsReviewCount)
			if s.IsNoOp {
				fmt.Fprint(os.Stdout, "  (no-op)")
			}
			fmt.Fprintln(os.Stdout)
			for _, note := range s.Notes {
				fmt.Fprintf(os.Stdout, "    note: %s\n", note)
			}
		}
		return nil
	},
}

func init() {
	runsListCmd.Flags().StringVar(&runsListProject, "project", "", "project ID (defaults to config)")
	runsListCmd.Flags().IntVar(&runsListLimit, "limit", 20, "max rows")
	runsLogCmd.Flags().StringVar(&runsLogProject, "project", "", "project ID (defaults to config)")
	runsLogCmd.Flags().IntVar(&runsLogLimit, "limit", 20, "max rows")

	runsCmd.AddCommand(runsListCmd, runsShowCmd, runsLogCmd)
	rootCmd.AddCommand(runsCmd)
}
