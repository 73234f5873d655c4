package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonathan/ckd-assistant/internal/discovery"
	"github.com/jonathan/ckd-assistant/internal/fetch"
	"github.com/jonathan/ckd-assistant/internal/knowledge"
)

var (
	indexDocs       string
	indexURLs       []string
	indexDiscover   []string
	indexUseBrowser bool
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build the medical knowledge index",
	Long: `Indexes guideline documents into the knowledge index of the configured embedding provider.

Sources are combined: local .txt/.md/.html files under --docs, pages given with --url, and
pages found by --discover queries (requires GOOGLE_SEARCH_API_KEY and GOOGLE_SEARCH_CX).`,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().StringVarP(&indexDocs, "docs", "d", "", "Directory of guideline documents (overrides config)")
	indexCmd.Flags().StringSliceVar(&indexURLs, "url", nil, "Guideline page URL to fetch and index (repeatable)")
	indexCmd.Flags().StringSliceVar(&indexDiscover, "discover", nil, "Search query used to discover guideline pages (repeatable)")
	indexCmd.Flags().BoolVar(&indexUseBrowser, "use-browser", false, "Use headless browser for pages with little static text (requires Chrome)")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg := appConfig
	if cmd.Flags().Changed("docs") {
		cfg.DocsDir = indexDocs
	}
	useBrowser := cfg.UseBrowser || indexUseBrowser

	a := newApp(cfg)
	defer a.Close()

	var docs []knowledge.Document
	if _, err := os.Stat(cfg.DocsDir); err == nil {
		local, err := knowledge.LoadDirectory(cfg.DocsDir)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(stdout, "Loaded %d documents from %s\n", len(local), cfg.DocsDir)
		docs = append(docs, local...)
	} else if cmd.Flags().Changed("docs") {
		return fmt.Errorf("docs directory not found: %s", cfg.DocsDir)
	}

	urls := append([]string{}, indexURLs...)
	if cmd.Flags().Changed("discover") {
		found, err := discoverGuidelines(ctx, indexDiscover)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(stdout, "Discovered %d guideline pages\n", len(found))
		urls = append(urls, found...)
	}
	docs = append(docs, fetchDocuments(ctx, urls, useBrowser)...)

	if len(docs) == 0 {
		return fmt.Errorf("no documents to index: add files to %s or pass --url/--discover", cfg.DocsDir)
	}

	if err := a.openIndex(ctx); err != nil {
		return err
	}
	n, err := a.index.Index(ctx, docs)
	if err != nil {
		return fmt.Errorf("failed to index documents: %w", err)
	}
	total, err := a.index.Count(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(stdout, "Indexed %d chunks from %d documents (%d chunks total) into %s\n", n, len(docs), total, a.index.Path())
	return nil
}

// discoverGuidelines runs guideline search queries. Blank queries fall back to
// the built-in ones.
func discoverGuidelines(ctx context.Context, queries []string) ([]string, error) {
	var cleaned []string
	for _, q := range queries {
		if q = strings.TrimSpace(q); q != "" {
			cleaned = append(cleaned, q)
		}
	}
	d, err := discovery.NewDiscoverer(ctx, os.Getenv("GOOGLE_SEARCH_API_KEY"), os.Getenv("GOOGLE_SEARCH_CX"))
	if err != nil {
		return nil, err
	}
	return d.FindGuidelines(ctx, cleaned)
}

// fetchDocuments fetches each page. Pages that fail are reported and skipped.
func fetchDocuments(ctx context.Context, urls []string, useBrowser bool) []knowledge.Document {
	opts := fetch.DefaultOptions()
	var docs []knowledge.Document
	for _, u := range urls {
		title, text, err := fetch.Page(ctx, u, opts, useBrowser)
		if err != nil {
			_, _ = fmt.Fprintf(stdout, "Skipping %s: %v\n", u, err)
			continue
		}
		if strings.TrimSpace(text) == "" {
			_, _ = fmt.Fprintf(stdout, "Skipping %s: no text extracted\n", u)
			continue
		}
		_, _ = fmt.Fprintf(stdout, "Fetched %s (%d chars)\n", u, len(text))
		docs = append(docs, knowledge.Document{Source: u, Title: title, Text: text})
	}
	return docs
}
