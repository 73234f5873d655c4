package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jonathan/ckd-assistant/internal/history"
	"github.com/jonathan/ckd-assistant/internal/interview"
	"github.com/jonathan/ckd-assistant/internal/knowledge"
	"github.com/jonathan/ckd-assistant/internal/pipeline"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// Request size limits for JSON bodies and websocket messages.
const (
	maxBodyBytes    = 64 << 10
	maxMessageBytes = 16 << 10
)

// bodyError turns a body read failure into a 413 or a validation error.
func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return fmt.Errorf("request body exceeds %d bytes: %w", tooLarge.Limit, err)
	}
	return &ErrValidation{Field: "body", Message: "invalid JSON: " + err.Error()}
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		validation  *ErrValidation
		invalid     *interview.InvalidStateError
		empty       *interview.EmptyAnswerError
		notFound    *interview.SessionNotFoundError
		generation  *pipeline.GenerationError
		retrieval   *knowledge.RetrievalError
		mismatch    *knowledge.EmbeddingMismatchError
		unavailable *history.DataUnavailableError
		tooLarge    *http.MaxBytesError
	)
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &validation), errors.As(err, &empty):
		return http.StatusBadRequest
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &invalid):
		return http.StatusConflict
	case errors.As(err, &generation), errors.As(err, &retrieval):
		return http.StatusBadGateway
	case errors.As(err, &mismatch), errors.As(err, &unavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
