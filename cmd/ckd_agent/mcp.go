package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/ckd-assistant/internal/interview"
	"github.com/jonathan/ckd-assistant/internal/mcpserver"
)

// version is reported to MCP clients.
var version = "dev"

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the interview and assessment tools over MCP (stdio)",
	Long: `Runs a Model Context Protocol server on stdin/stdout exposing start_interview, get_prompt,
submit_answer, reset_interview, search_medical_knowledge and run_assessment.`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg := appConfig

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
	sessions := interview.NewManager(source, cfg.SessionTTL.Std())
	sessions.StartSweeper(ctx, time.Minute)

	srv := mcpserver.NewServer(version, sessions, a.store, a.runner(nil))
	return srv.Run(ctx)
}
