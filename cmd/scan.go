package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/expert-registry/internal/extract"
	"github.com/sells-group/expert-registry/internal/inbox"
	"github.com/sells-group/expert-registry/internal/ingest"
	"github.com/sells-group/expert-registry/internal/scan"
	"github.com/sells-group/expert-registry/pkg/anthropic"
)

var (
	scanProject     string
	scanMaxMessages int
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the inbox for new expert-network emails",
	Long:  "Lists unseen inbox messages matching the network filter and ingests each one. Re-running never reprocesses a message.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		project, err := projectID(scanProject)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		in, err := inbox.NewDir(cfg.Inbox.Dir)
		if err != nil {
			return err
		}

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

		coordinator := scan.New(st, in, orchestrator, scan.Options{
			Filter: inbox.Filter{
				SenderDomains: cfg.Inbox.SenderDomains,
				Keywords:      cfg.Inbox.Keywords,
			},
			MinBodyLength: cfg.Scan.MinBodyLength,
			Hypothesis:    cfg.Project.Hypothesis,
		})

		maxMessages := scanMaxMessages
		if maxMessages == 0 {
			maxMessages = cfg.Scan.MaxMessages
		}

		run, err := coordinator.Scan(ctx, project, maxMessages)
		if err != nil {
			return eris.Wrap(err, "scan")
		}

		fmt.Fprintf(os.Stdout, "Scan %s %s: considered %d, processed %d, skipped %d, failed %d\n",
			run.ID, run.Status, run.MessagesConsidered, run.MessagesProcessed, run.MessagesSkipped, run.MessagesFailed)
		fmt.Fprintf(os.Stdout, "Experts: added %d, updated %d, merged %d\n",
			run.ExpertsAdded, run.ExpertsUpdated, run.ExpertsMerged)
		for _, detail := range run.ErrorDetails {
			fmt.Fprintf(os.Stderr, "  error: %s\n", detail)
		}
		return nil
	},
}

func init() {
	scanCmd.Flags().StringVar(&scanProject, "project", "", "project ID (defaults to config)")
	scanCmd.Flags().IntVar(&scanMaxMessages, "max", 0, "max messages to process (defaults to config)")
	rootCmd.AddCommand(scanCmd)
}
