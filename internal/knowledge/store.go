// Package knowledge provides the guideline evidence store used by the research stage.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jonathan/ckd-assistant/internal/logging"
	"github.com/jonathan/ckd-assistant/internal/types"
)

const (
	// DefaultK is the number of passages retrieved per query.
	DefaultK = 5
	// MinScore is the cosine similarity below which a passage is not considered relevant.
	MinScore = 0.2
)

// Evidence texts handed to the research stage when nothing usable was retrieved.
const (
	NoResultsText  = "No relevant medical information found for this query."
	NoEvidenceText = "no evidence found"
)

// Store searches indexed guideline passages. An empty result is not an error.
type Store interface {
	Search(ctx context.Context, query string, k int) ([]types.Evidence, error)
}

// Document is a source text to be chunked and indexed.
type Document struct {
	Source string
	Title  string
	Text   string
}

// Empty is a Store with no documents.
type Empty struct{}

// Search always returns no results.
func (Empty) Search(context.Context, string, int) ([]types.Evidence, error) {
	return []types.Evidence{}, nil
}

// FormatResults renders evidence as numbered, attributed passages.
func FormatResults(results []types.Evidence) string {
	if len(results) == 0 {
		return NoResultsText
	}
	parts := make([]string, 0, len(results))
	for i, r := range results {
		parts = append(parts, fmt.Sprintf("Source %d (%s):\n%s", i+1, r.Source, r.Text))
	}
	return strings.Join(parts, "\n\n")
}

// ErrorTolerantSearch searches store and always returns usable evidence text.
// Backend failures are logged as RetrievalError and degrade to NoEvidenceText.
func ErrorTolerantSearch(ctx context.Context, store Store, query string, k int) string {
	if store == nil {
		return NoEvidenceText
	}
	if k <= 0 {
		k = DefaultK
	}

	results, err := store.Search(ctx, query, k)
	if err != nil {
		var rerr *RetrievalError
		if !errors.As(err, &rerr) {
			rerr = &RetrievalError{Query: query, Cause: err}
		}
		logging.New("knowledge").WarnContext(ctx, "retrieval failed, continuing without evidence",
			slog.String("error", rerr.Error()))
		return NoEvidenceText
	}
	return FormatResults(results)
}
