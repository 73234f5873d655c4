package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/jonathan/ckd-assistant/internal/interview"
	"github.com/jonathan/ckd-assistant/internal/pipeline"
	"github.com/jonathan/ckd-assistant/internal/types"
)

// generationFailure is the 502 body for a failed stage
type generationFailure struct {
	Error     string `json:"error"`
	Stage     string `json:"stage"`
	RunID     string `json:"run_id,omitempty"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

// assessmentInput reads the request and the completed session answers
func (s *Server) assessmentInput(w http.ResponseWriter, r *http.Request) (pipeline.Input, error) {
	var req types.AssessmentRequest
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return pipeline.Input{}, bodyError(err)
	}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			return pipeline.Input{}, &ErrValidation{Field: "body", Message: "invalid JSON: " + err.Error()}
		}
		if err := req.Validate(); err != nil {
			return pipeline.Input{}, &ErrValidation{Field: "image_ref", Message: err.Error()}
		}
	}

	id := r.PathValue("id")
	snap, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		return pipeline.Input{}, err
	}
	if snap.Status != interview.StatusComplete {
		return pipeline.Input{}, &interview.InvalidStateError{Op: "run assessment", Status: snap.Status}
	}

	return pipeline.Input{
		Answers:   snap.Answers,
		ImageRef:  req.ImageRef,
		SessionID: id,
	}, nil
}

func failureOf(genErr *pipeline.GenerationError) generationFailure {
	return generationFailure{
		Error:     genErr.Err.Error(),
		Stage:     genErr.Stage,
		RunID:     genErr.RunID,
		ElapsedMs: genErr.Elapsed.Milliseconds(),
	}
}

// handleAssessment runs the pipeline on a completed session and returns the report
func (s *Server) handleAssessment(w http.ResponseWriter, r *http.Request) {
	in, err := s.assessmentInput(w, r)
	if err != nil {
		s.errorFromErr(w, r, err)
		return
	}

	rep, err := s.runner.Run(r.Context(), in)
	if err != nil {
		var genErr *pipeline.GenerationError
		if errors.As(err, &genErr) {
			s.jsonResponse(w, http.StatusBadGateway, failureOf(genErr))
			return
		}
		s.errorFromErr(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, rep)
}

// handleAssessmentStream runs the pipeline and streams progress as SSE
func (s *Server) handleAssessmentStream(w http.ResponseWriter, r *http.Request) {
	in, err := s.assessmentInput(w, r)
	if err != nil {
		s.errorFromErr(w, r, err)
		return
	}

	stream, err := newAssessmentStream(w, s.heartbeat)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	var runID string
	runner := s.runner.WithProgress(func(event pipeline.ProgressEvent) {
		runID = event.RunID
		stream.Stage(event)
	})

	rep, err := runner.Run(r.Context(), in)
	if err != nil {
		var genErr *pipeline.GenerationError
		if errors.As(err, &genErr) {
			err = genErr
		}
		stream.Fail(runID, err)
		return
	}
	stream.Report(rep)
}
