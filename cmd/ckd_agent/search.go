package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonathan/ckd-assistant/internal/knowledge"
	"github.com/jonathan/ckd-assistant/internal/types"
)

var (
	searchK    int
	searchJSON bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the medical knowledge index",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchK, "k", "k", knowledge.DefaultK, "Number of passages to return")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Print results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	query := strings.Join(args, " ")
	if searchK <= 0 {
		return fmt.Errorf("k must be positive, got %d", searchK)
	}

	a := newApp(appConfig)
	defer a.Close()

	if err := a.openIndex(ctx); err != nil {
		return err
	}
	results, err := a.store.Search(ctx, query, searchK)
	if err != nil {
		return err
	}
	return printEvidence(stdout, results, searchJSON)
}

func printEvidence(out io.Writer, results []types.Evidence, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	if len(results) == 0 {
		_, _ = fmt.Fprintln(out, knowledge.NoResultsText)
		return nil
	}
	for i, r := range results {
		_, _ = fmt.Fprintf(out, "Source %d (%s, score %.3f):\n%s\n\n", i+1, r.Source, r.Score, r.Text)
	}
	return nil
}
