package knowledge

import "fmt"

// RetrievalError wraps a knowledge backend failure.
type RetrievalError struct {
	Query string
	Cause error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("knowledge search failed for %q: %v", e.Query, e.Cause)
}

func (e *RetrievalError) Unwrap() error {
	return e.Cause
}

// EmbeddingMismatchError is returned when an index built with one embedding
// representation is opened with another.
type EmbeddingMismatchError struct {
	Path          string
	IndexProvider string
	IndexModel    string
	Provider      string
	Model         string
}

func (e *EmbeddingMismatchError) Error() string {
	return fmt.Sprintf("index %s was built with %s/%s but opened with %s/%s",
		e.Path, e.IndexProvider, e.IndexModel, e.Provider, e.Model)
}
