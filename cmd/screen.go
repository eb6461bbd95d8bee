package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/expert-registry/internal/config"
	"github.com/sells-group/expert-registry/internal/extract"
	"github.com/sells-group/expert-registry/internal/screen"
	"github.com/sells-group/expert-registry/pkg/anthropic"
)

var (
	screenProject string
	screenForce   bool
	screenRubric  string
)

var screenCmd = &cobra.Command{
	Use:   "screen",
	Short: "Screen the project roster against the rubric",
	Long:  "Grades every expert in the project for fit. Already-screened experts are skipped unless --force is set.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		project, err := projectID(screenProject)
		if err != nil {
			return err
		}

		rubricPath := screenRubric
		if rubricPath == "" {
			rubricPath = cfg.Screen.RubricPath
		}
		rubric, err := config.LoadRubric(rubricPath)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if cfg.Anthropic.Key == "" {
			return eris.New("anthropic API key is required (EXPERTS_ANTHROPIC_KEY)")
		}
		screener := extract.NewAnthropicExtractor(
			anthropic.NewClient(cfg.Anthropic.Key),
			extract.Options{Model: cfg.Anthropic.HaikuModel},
		)

		runner := screen.New(st, screener, screen.Options{
			Concurrency:       cfg.Screen.Concurrency,
			RequestsPerSecond: cfg.Screen.RequestsPerSecond,
			Hypothesis:        cfg.Project.Hypothesis,
		})

		summary, err := runner.Run(ctx, project, rubric, screenForce)
		if err != nil {
			return eris.Wrap(err, "screen")
		}

		fmt.Fprintf(os.Stdout, "Screened %d, failed %d, skipped %d\n",
			summary.Screened, summary.Failed, summary.Skipped)
		for _, item := range summary.Results {
			if item.Err != nil {
				fmt.Fprintf(os.Stderr, "  ! %s: %v\n", item.ExpertName, item.Err)
				continue
			}
			fmt.Fprintf(os.Stdout, "  %s: %s (%d)\n", item.ExpertName, item.Result.Grade, item.Result.Score)
		}
		return nil
	},
}

func init() {
	screenCmd.Flags().StringVar(&screenProject, "project", "", "project ID (defaults to config)")
	screenCmd.Flags().BoolVar(&screenForce, "force", false, "re-screen experts that already have a grade")
	screenCmd.Flags().StringVar(&screenRubric, "rubric", "", "rubric yaml path (defaults to config)")
	rootCmd.AddCommand(screenCmd)
}
