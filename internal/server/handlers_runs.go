package server

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/jonathan/ckd-assistant/internal/db"
)

type runDetail struct {
	Run    *db.Run      `json:"run"`
	Steps  []db.RunStep `json:"steps"`
	Report string       `json:"report,omitempty"`
}

// handleListRuns lists persisted assessment runs, newest first
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	filters := db.RunFilters{
		SessionID: r.URL.Query().Get("session_id"),
		Status:    r.URL.Query().Get("status"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.errorFromErr(w, r, &ErrValidation{Field: "limit", Message: "must be a positive integer"})
			return
		}
		filters.Limit = n
	}

	runs, err := s.runs.ListRuns(r.Context(), filters)
	if err != nil {
		s.errorFromErr(w, r, err)
		return
	}
	if runs == nil {
		runs = []db.Run{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

// handleGetRun returns one run with its stage steps and display report
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorFromErr(w, r, &ErrValidation{Field: "id", Message: "invalid run ID"})
		return
	}

	run, err := s.runs.GetRun(r.Context(), runID)
	if err != nil {
		s.errorFromErr(w, r, err)
		return
	}
	if run == nil {
		s.errorResponse(w, http.StatusNotFound, "run not found")
		return
	}

	steps, err := s.runs.ListRunSteps(r.Context(), runID)
	if err != nil {
		s.errorFromErr(w, r, err)
		return
	}
	if steps == nil {
		steps = []db.RunStep{}
	}

	text, err := s.runs.GetTextArtifact(r.Context(), runID, db.ArtifactReport)
	if err != nil {
		s.errorFromErr(w, r, err)
		return
	}

	s.jsonResponse(w, http.StatusOK, runDetail{Run: run, Steps: steps, Report: text})
}
