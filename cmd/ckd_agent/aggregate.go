package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/ckd-assistant/internal/export"
)

var (
	aggregateInput    string
	aggregateMarkdown bool
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Summarize the risk scores of a scenario batch",
	Long:  `Reads a consolidated *_risk_scores.csv and prints count, mean, std, min, max and median of the risk and confidence columns.`,
	RunE:  runAggregate,
}

func init() {
	aggregateCmd.Flags().StringVarP(&aggregateInput, "input", "i", "", "Path to a risk scores CSV (required)")
	aggregateCmd.Flags().BoolVar(&aggregateMarkdown, "markdown", false, "Render the table as markdown")

	_ = aggregateCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(aggregateCmd)
}

func runAggregate(_ *cobra.Command, _ []string) error {
	f, err := os.Open(aggregateInput)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", aggregateInput, err)
	}
	defer func() { _ = f.Close() }()

	stats, err := export.AnalyzeRiskScores(f)
	if err != nil {
		return fmt.Errorf("failed to analyze %s: %w", aggregateInput, err)
	}

	mode := export.ASCII
	if aggregateMarkdown {
		mode = export.Markdown
	}
	_, _ = fmt.Fprintln(stdout, export.StatsTable(mode, stats))
	return nil
}
