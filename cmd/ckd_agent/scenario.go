package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/ckd-assistant/internal/config"
	"github.com/jonathan/ckd-assistant/internal/export"
	"github.com/jonathan/ckd-assistant/internal/scenario"
)

var (
	scenarioFile         string
	scenarioSimulations  int
	scenarioOutDir       string
	scenarioConcurrency  int
	scenarioResponseType string
	scenarioSeed         int64
	scenarioHTML         bool
	scenarioS3           bool
)

var scenarioCmd = &cobra.Command{
	Use:   "scenario",
	Short: "Run simulated patients through the assessment pipeline",
	Long: `Generates synthetic answers for every scenario in a CSV or YAML file, runs each
simulation through the assessment pipeline and exports per-run reports plus consolidated
responses, risk factor and risk score CSVs per scenario.

With --s3 the exports go to the bucket configured by S3_ENDPOINT, S3_ACCESS_KEY,
S3_SECRET_KEY and S3_BUCKET (or s3_bucket in the config file).`,
	RunE: runScenario,
}

func init() {
	scenarioCmd.Flags().StringVarP(&scenarioFile, "scenarios", "s", "", "Path to the scenario CSV or YAML file (required)")
	scenarioCmd.Flags().IntVarP(&scenarioSimulations, "num-simulations", "n", 1, "Simulations per scenario")
	scenarioCmd.Flags().StringVarP(&scenarioOutDir, "output-dir", "o", "", "Export directory (overrides config)")
	scenarioCmd.Flags().IntVarP(&scenarioConcurrency, "concurrency", "c", 1, "Simulations run in parallel per scenario")
	scenarioCmd.Flags().StringVar(&scenarioResponseType, "response-type", scenario.ResponseYesNoMaybe, "Synthetic answer style: yes_no_maybe or text")
	scenarioCmd.Flags().Int64Var(&scenarioSeed, "seed", 0, "Seed for fallback answers (defaults to the current time)")
	scenarioCmd.Flags().BoolVar(&scenarioHTML, "html", false, "Also export HTML renderings of each report")
	scenarioCmd.Flags().BoolVar(&scenarioS3, "s3", false, "Export to an S3-compatible bucket instead of the output directory")

	_ = scenarioCmd.MarkFlagRequired("scenarios")
	rootCmd.AddCommand(scenarioCmd)
}

func runScenario(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg := appConfig
	if cmd.Flags().Changed("output-dir") {
		cfg.ExportDir = scenarioOutDir
	}
	switch scenarioResponseType {
	case scenario.ResponseYesNoMaybe, scenario.ResponseText:
	default:
		return fmt.Errorf("unsupported response type: %s", scenarioResponseType)
	}

	scenarios, err := scenario.LoadScenarios(scenarioFile)
	if err != nil {
		return err
	}

	sink, err := exportSink(cfg, scenarioS3)
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

	source, err := a.catalogSource()
	if err != nil {
		return err
	}
	c, err := source.Current()
	if err != nil {
		return err
	}

	seed := scenarioSeed
	if !cmd.Flags().Changed("seed") {
		seed = time.Now().UnixNano()
	}

	batch := &scenario.Batch{
		Generator:    scenario.NewGenerator(a.client, c, seed),
		Assessor:     a.runner(nil),
		Sink:         sink,
		ResponseType: scenarioResponseType,
		Concurrency:  scenarioConcurrency,
		Provider:     cfg.Provider,
		Model:        a.modelName(),
		HTML:         scenarioHTML,
		Out:          stdout,
	}

	_, _ = fmt.Fprintf(stdout, "Running %d scenarios x %d simulations\n", len(scenarios), scenarioSimulations)
	outcomes, err := batch.Run(ctx, scenarios, scenarioSimulations)
	if err != nil {
		return err
	}

	failed := 0
	for _, o := range outcomes {
		failed += o.Failed()
		_, _ = fmt.Fprintf(stdout, "%s: %d/%d succeeded -> %s\n",
			o.Scenario.Description, len(o.Results)-o.Failed(), len(o.Results), o.Files.RiskScores)
	}
	_, _ = fmt.Fprintf(stdout, "Done: %d scenarios, %d failed simulations\n", len(outcomes), failed)
	return nil
}

// exportSink returns the S3 sink when requested, otherwise the export directory.
func exportSink(cfg config.Config, useS3 bool) (export.Sink, error) {
	if !useS3 {
		return export.DirSink{Dir: cfg.ExportDir}, nil
	}
	bucket := cfg.S3Bucket
	if v := os.Getenv("S3_BUCKET"); v != "" {
		bucket = v
	}
	useSSL, _ := strconv.ParseBool(os.Getenv("S3_USE_SSL"))
	return export.NewS3Sink(export.S3Config{
		Endpoint:  os.Getenv("S3_ENDPOINT"),
		Region:    os.Getenv("S3_REGION"),
		AccessKey: os.Getenv("S3_ACCESS_KEY"),
		SecretKey: os.Getenv("S3_SECRET_KEY"),
		Bucket:    bucket,
		Prefix:    cfg.S3Prefix,
		UseSSL:    useSSL,
	})
}
