package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/expert-registry/internal/extract"
	"github.com/sells-group/expert-registry/internal/ingest"
	"github.com/sells-group/expert-registry/pkg/anthropic"
)

var (
	ingestProject string
	ingestFile    string
	ingestNetwork string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest a single email into the registry",
	Long:  "Reads one email (from a file or stdin), extracts expert profiles, and applies adds, updates, and merges to the project roster.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		project, err := projectID(ingestProject)
		if err != nil {
			return err
		}

		var text []byte
		if ingestFile == "" || ingestFile == "-" {
			text, err = io.ReadAll(os.Stdin)
		} else {
			text, err = os.ReadFile(ingestFile)
		}
		if err != nil {
			return eris.Wrap(err, "read email")
		}
		if len(text) == 0 {
			return eris.New("empty email input")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if cfg.Anthropic.Key == "" {
			return eris.New("anthropic API key is required (EXPERTS_ANTHROPIC_KEY)")
		}
		extractor := extract.NewAnthropicExtractor(
			anthropic.NewClient(cfg.Anthropic.Key),
			extract.Options{Model: cfg.Anthropic.SonnetModel},
		)

		orchestrator := ingest.New(st, extractor, ingest.Options{
			AutoMergeThreshold: cfg.Ingest.AutoMergeThreshold,
			MatchThreshold:     cfg.Ingest.MatchThreshold,
		})

		result, err := orchestrator.Ingest(ctx, ingest.Request{
			ProjectID:  project,
			EmailText:  string(text),
			Network:    ingestNetwork,
			Hypothesis: cfg.Project.Hypothesis,
		})
		if err != nil {
			return eris.Wrap(err, "ingest")
		}

		printSummary(os.Stdout, result)
		return nil
	},
}

func printSummary(w io.Writer, result *ingest.Result) {
	s := result.Summary
	if s.IsNoOp {
		fmt.Fprintln(w, "No changes.")
	} else {
		fmt.Fprintf(w, "Added %d, updated %d, merged %d, needs review %d (extracted %d).\n",
			s.AddedCount, s.UpdatedCount, s.MergedCount, s.NeedsReviewCount, s.ExtractedCount)
	}
	for _, note := range s.Notes {
		fmt.Fprintf(w, "  note: %s\n", note)
	}
	for _, a := range result.Changes.Added {
		fmt.Fprintf(w, "  + %s (%s)\n", a.ExpertName, a.ExpertID)
	}
	for _, u := range result.Changes.Updated {
		for _, c := range u.Changes {
			if c.Previous != "" {
				fmt.Fprintf(w, "  ~ %s: %s: %q -> %q\n", u.ExpertName, c.Field, c.Previous, c.New)
			} else {
				fmt.Fprintf(w, "  ~ %s: %s: %q\n", u.ExpertName, c.Field, c.New)
			}
		}
	}
	for _, m := range result.Changes.Merged {
		fmt.Fprintf(w, "  * merged %s into %s (%s, %.2f)\n", m.RetiredID, m.SurvivorID, m.MatchTier, m.Score)
	}
	for _, r := range result.Changes.NeedsReview {
		fmt.Fprintf(w, "  ? review %s vs %s: %s\n", r.ExpertIDA, r.ExpertIDB, r.Reason)
	}
}

func init() {
	ingestCmd.Flags().StringVar(&ingestProject, "project", "", "project ID (defaults to config)")
	ingestCmd.Flags().StringVar(&ingestFile, "file", "-", "email text file, - for stdin")
	ingestCmd.Flags().StringVar(&ingestNetwork, "network", "", "expert network hint (e.g. GLG)")
	rootCmd.AddCommand(ingestCmd)
}
