// Package main provides the entry point for the CKD risk-assessment assistant.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jonathan/ckd-assistant/internal/config"
	"github.com/jonathan/ckd-assistant/internal/logging"
)

var (
	configPath   string
	providerFlag string
	modelFlag    string
	logLevel     string
	logFormat    string
)

// appConfig is resolved once per invocation by the root command's pre-run hook.
var appConfig = config.Defaults()

var rootCmd = &cobra.Command{
	Use:   "ckd_agent",
	Short: "CKD risk-assessment assistant",
	Long: `ckd_agent interviews a patient one question at a time and runs the answers through a
five-stage assessment pipeline (validate -> diagnose -> research -> critique -> present)
backed by a medical knowledge index and historical patient cohorts.

Configuration can be loaded from a JSON or YAML file using --config. Command-line flags override config file values.`,
	SilenceUsage:      true,
	PersistentPreRunE: setupRoot,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a config file (.json, .yaml or .yml)")
	rootCmd.PersistentFlags().StringVar(&providerFlag, "provider", "", "LLM provider: gemini, openai or groq")
	rootCmd.PersistentFlags().StringVar(&modelFlag, "model", "", "Model name used for every tier (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text or json")
}

func setupRoot(cmd *cobra.Command, _ []string) error {
	level, err := logging.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	// Logs go to stderr so that stdout stays clean for reports and the MCP transport.
	logging.Init(level, logFormat, os.Stderr)

	cfg, err := resolveConfig(cmd, configPath)
	if err != nil {
		return err
	}
	appConfig = cfg
	return nil
}

// resolveConfig loads the optional config file, applies global flag overrides,
// validates the result and fills in defaults.
func resolveConfig(cmd *cobra.Command, path string) (config.Config, error) {
	var cfg config.Config
	if path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return config.Config{}, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = *loaded
	}

	flags := cmd.Flags()
	if flags.Changed("provider") {
		cfg.Provider = providerFlag
	}
	if flags.Changed("model") {
		cfg.Model = modelFlag
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg.MergeWithDefaults(config.Defaults()), nil
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
