// Package discovery finds kidney-disease guideline pages through Google Custom Search.
package discovery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonathan/ckd-assistant/internal/logging"
	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"
)

// DefaultQueries seed guideline discovery when no query is given.
var DefaultQueries = []string{
	"KDIGO chronic kidney disease evaluation and management guideline",
	"chronic kidney disease risk factors hypertension diabetes",
	"CKD symptoms pedal edema nocturia fatigue",
}

// Discoverer searches for guideline pages
type Discoverer struct {
	svc     *customsearch.Service
	cx      string
	perPage int64
	logger  *slog.Logger
}

// NewDiscoverer creates a new Discoverer. Extra client options are passed to the
// search service, which is how tests point it at a local endpoint.
func NewDiscoverer(ctx context.Context, apiKey string, cx string, opts ...option.ClientOption) (*Discoverer, error) {
	if apiKey == "" || cx == "" {
		return nil, fmt.Errorf("search API key and engine id are required")
	}
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	svc, err := customsearch.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create customsearch service: %w", err)
	}
	return &Discoverer{
		svc:     svc,
		cx:      cx,
		perPage: 5,
		logger:  logging.New("discovery"),
	}, nil
}

// FindGuidelines runs each query and returns de-duplicated result links from
// trusted publishers. Failed queries are skipped.
func (d *Discoverer) FindGuidelines(ctx context.Context, queries []string) ([]string, error) {
	if len(queries) == 0 {
		queries = DefaultQueries
	}

	var links []string
	failed := 0
	for _, q := range queries {
		resp, err := d.svc.Cse.List().Cx(d.cx).Q(q).Num(d.perPage).Context(ctx).Do()
		if err != nil {
			failed++
			d.logger.WarnContext(ctx, "search query failed", slog.String("query", q), slog.String("error", err.Error()))
			continue
		}
		for _, item := range resp.Items {
			links = append(links, item.Link)
		}
	}

	if failed == len(queries) {
		return nil, fmt.Errorf("all %d search queries failed", failed)
	}

	return FilterToTrustedDomains(dedupe(links), TrustedDomains), nil
}

func dedupe(urls []string) []string {
	unique := make([]string, 0, len(urls))
	seen := make(map[string]bool)
	for _, u := range urls {
		if u != "" && !seen[u] {
			unique = append(unique, u)
			seen[u] = true
		}
	}
	return unique
}
