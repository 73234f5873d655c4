package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/ckd-assistant/internal/export"
	"github.com/jonathan/ckd-assistant/internal/pipeline"
	"github.com/jonathan/ckd-assistant/internal/schemas"
	"github.com/jonathan/ckd-assistant/internal/types"
	rootschemas "github.com/jonathan/ckd-assistant/schemas"
)

var (
	assessAnswers string
	assessImage   string
	assessOutDir  string
	assessHTML    bool
	assessVerbose bool
)

var assessCmd = &cobra.Command{
	Use:   "assess",
	Short: "Run the assessment pipeline on a saved answer set",
	Long: `Runs the five assessment stages on answers saved as a JSON array of
{"question": ..., "answer": ...} objects and prints the report.

With --out the markdown report (and with --html an HTML rendering) is written to that directory.`,
	RunE: runAssess,
}

func init() {
	assessCmd.Flags().StringVarP(&assessAnswers, "answers", "a", "", "Path to the answers JSON file (required)")
	assessCmd.Flags().StringVar(&assessImage, "image", "", "Reference to an optional medical image")
	assessCmd.Flags().StringVarP(&assessOutDir, "out", "o", "", "Directory to export the report to")
	assessCmd.Flags().BoolVar(&assessHTML, "html", false, "Also export an HTML rendering of the report")
	assessCmd.Flags().BoolVarP(&assessVerbose, "verbose", "v", false, "Print every stage result")

	_ = assessCmd.MarkFlagRequired("answers")
	rootCmd.AddCommand(assessCmd)
}

func runAssess(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg := appConfig

	answers, err := loadAnswers(assessAnswers)
	if err != nil {
		return err
	}

	a := newApp(cfg)
	defer a.Close()

	if err := a.withClient(ctx); err != nil {
		return err
	}
	a.withKnowledge(ctx)
	if err := a.withDB(ctx); err != nil {
		a.logger.Warn("continuing without run persistence", "error", err)
	}

	_, _ = fmt.Fprintf(stdout, "Assessing %d answers from %s\n", len(answers), assessAnswers)

	started := time.Now()
	rep, runErr := a.runner(stdout).Run(ctx, pipeline.Input{Answers: answers, ImageRef: assessImage})
	if runErr == nil {
		printReport(stdout, rep, assessVerbose || cfg.Verbose)
	}

	if assessOutDir != "" {
		result := export.RunResult{
			Scenario:  strings.TrimSuffix(filepath.Base(assessAnswers), filepath.Ext(assessAnswers)),
			StartedAt: started,
			Elapsed:   time.Since(started),
			Provider:  cfg.Provider,
			Model:     a.modelName(),
			Answers:   answers,
			Report:    rep,
			Err:       runErr,
		}
		sink := export.DirSink{Dir: assessOutDir}
		names, err := export.ExportRun(ctx, sink, result, export.Options{HTML: assessHTML})
		if err != nil {
			return err
		}
		for _, name := range names {
			_, _ = fmt.Fprintf(stdout, "Saved: %s\n", sink.Path(name))
		}
	}
	return runErr
}

// loadAnswers reads and schema-checks an answers file.
func loadAnswers(path string) ([]types.Answer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read answers file: %w", err)
	}
	if err := schemas.Validate(rootschemas.Answers, data); err != nil {
		return nil, fmt.Errorf("invalid answers file %s: %w", path, err)
	}
	var answers []types.Answer
	if err := json.Unmarshal(data, &answers); err != nil {
		return nil, fmt.Errorf("failed to parse answers file: %w", err)
	}
	return answers, nil
}
