package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/ckd-assistant/internal/interview"
	"github.com/jonathan/ckd-assistant/internal/server"
)

var (
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Start an HTTP server that exposes the interview, assessment and knowledge search endpoints.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "Port to listen on")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	cfg := appConfig
	if cmd.Flags().Changed("port") {
		cfg.Port = servePort
	}

	a := newApp(cfg)
	defer a.Close()

	if err := a.withClient(ctx); err != nil {
		return err
	}
	a.withKnowledge(ctx)
	if err := a.withDB(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	source, err := a.catalogSource()
	if err != nil {
		return err
	}
	sessions := interview.NewManager(source, cfg.SessionTTL.Std())
	sessions.StartSweeper(ctx, time.Minute)

	srvCfg := server.Config{
		Port:       cfg.Port,
		Sessions:   sessions,
		Runner:     a.runner(nil),
		Knowledge:  a.store,
		RetrievalK: cfg.RetrievalK,
	}
	if a.db != nil {
		srvCfg.Runs = a.db
	}

	srv, err := server.New(srvCfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Start()
}
