package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/expert-registry/internal/dedupe"
	"github.com/sells-group/expert-registry/internal/model"
	"github.com/sells-group/expert-registry/internal/store"
)

var expertsCmd = &cobra.Command{
	Use:   "experts",
	Short: "Inspect and correct the expert roster",
}

// -- experts list --

var (
	expertsListProject string
	expertsListStatus  string
	expertsListLimit   int
)

var expertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List experts in a project",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		project, err := projectID(expertsListProject)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		experts, err := st.ListExperts(ctx, store.ExpertFilter{
			ProjectID: project,
			Status:    model.ExpertStatus(expertsListStatus),
			Limit:     expertsListLimit,
		})
		if err != nil {
			return eris.Wrap(err, "experts list")
		}

		if len(experts) == 0 {
			fmt.Fprintln(os.Stderr, "No experts found.")
			return nil
		}

		formatExpertsList(os.Stdout, experts)
		return nil
	},
}

func formatExpertsList(w io.Writer, experts []model.ExpertRecord) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tEMPLOYER\tTITLE\tSTATUS\tCONFLICT\tGRADE")
	for _, e := range experts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ID, e.CanonicalName, e.CanonicalEmployer, e.CanonicalTitle,
			e.Status, e.ConflictStatus, e.ScreeningGrade)
	}
	tw.Flush() //nolint:errcheck
}

// -- experts show --

var expertsShowCmd = &cobra.Command{
	Use:   "show <expert-id>",
	Short: "Show one expert with sources",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		expert, err := st.GetExpert(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "experts show")
		}
		sources, err := st.ListSources(ctx, expert.ID)
		if err != nil {
			return eris.Wrap(err, "experts show: sources")
		}

		fmt.Fprintf(os.Stdout, "%s\n", expert.CanonicalName)
		fmt.Fprintf(os.Stdout, "  id:        %s\n", expert.ID)
		fmt.Fprintf(os.Stdout, "  employer:  %s\n", expert.CanonicalEmployer)
		fmt.Fprintf(os.Stdout, "  title:     %s\n", expert.CanonicalTitle)
		fmt.Fprintf(os.Stdout, "  status:    %s\n", expert.Status)
		if expert.ConflictStatus != "" {
			fmt.Fprintf(os.Stdout, "  conflict:  %s %s\n", expert.ConflictStatus, expert.ConflictID)
		}
		if expert.ScreeningGrade != "" {
			fmt.Fprintf(os.Stdout, "  screening: %s (%d) %s\n",
				expert.ScreeningGrade, expert.ScreeningScore, expert.ScreeningRationale)
		}
		fmt.Fprintf(os.Stdout, "  sources:   %d\n", len(sources))
		for _, s := range sources {
			fmt.Fprintf(os.Stdout, "    - %s %s (%s) email=%s\n",
				s.CreatedAt.Format("2006-01-02"), s.Name, s.Network, s.EmailID)
		}
		return nil
	},
}

// -- experts merge --

var expertsMergeCmd = &cobra.Command{
	Use:   "merge <expert-id-a> <expert-id-b>",
	Short: "Merge two experts, keeping the more complete record",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		survivor, err := dedupe.NewMerger(st).Merge(ctx, args[0], args[1])
		if err != nil {
			return eris.Wrap(err, "experts merge")
		}

		fmt.Fprintf(os.Stdout, "Merged. Survivor: %s (%s)\n", survivor.CanonicalName, survivor.ID)
		return nil
	},
}

// -- experts pin --

var expertsPinCmd = &cobra.Command{
	Use:   "pin <expert-id> <field>",
	Short: "Mark a field as human-edited so extractions never overwrite it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.PinField(ctx, args[0], args[1]); err != nil {
			return eris.Wrap(err, "experts pin")
		}

		fmt.Fprintf(os.Stdout, "Pinned %s on %s\n", args[1], args[0])
		return nil
	},
}

// -- experts delete --

var expertsDeleteCmd = &cobra.Command{
	Use:   "delete <expert-id>",
	Short: "Delete an expert and its sources",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.DeleteExpert(ctx, args[0]); err != nil {
			return eris.Wrap(err, "experts delete")
		}

		fmt.Fprintf(os.Stdout, "Deleted %s\n", args[0])
		return nil
	},
}

func init() {
	expertsListCmd.Flags().StringVar(&expertsListProject, "project", "", "project ID (defaults to config)")
	expertsListCmd.Flags().StringVar(&expertsListStatus, "status", "", "filter by status")
	expertsListCmd.Flags().IntVar(&expertsListLimit, "limit", 0, "max rows")

	expertsCmd.AddCommand(expertsListCmd, expertsShowCmd, expertsMergeCmd, expertsPinCmd, expertsDeleteCmd)
	rootCmd.AddCommand(expertsCmd)
}
