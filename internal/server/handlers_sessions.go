package server

import (
	"net/http"

	"github.com/jonathan/ckd-assistant/internal/interview"
	"github.com/jonathan/ckd-assistant/internal/types"
)

// sessionView is the JSON shape returned by the session endpoints
type sessionView struct {
	SessionID string           `json:"session_id"`
	Token     string           `json:"token,omitempty"`
	Status    interview.Status `json:"status"`
	Index     int              `json:"index"`
	Total     int              `json:"total"`
	Complete  bool             `json:"complete"`
	Question  *types.Question  `json:"question,omitempty"`
	Prompt    string           `json:"prompt,omitempty"`
	Answers   []types.Answer   `json:"answers,omitempty"`
}

func viewOf(snap interview.Snapshot) sessionView {
	v := sessionView{
		SessionID: snap.ID,
		Status:    snap.Status,
		Index:     snap.Index,
		Total:     snap.Total,
		Complete:  snap.Status == interview.StatusComplete,
		Question:  snap.Question,
		Answers:   snap.Answers,
	}
	if snap.Question != nil {
		v.Prompt = snap.Question.Prompt()
	}
	return v
}

// handleCreateSession starts an interview and returns its session token
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	snap, err := s.sessions.Create(r.Context())
	if err != nil {
		s.errorFromErr(w, r, err)
		return
	}

	token, err := s.jwtService.GenerateToken(snap.ID)
	if err != nil {
		_ = s.sessions.Delete(r.Context(), snap.ID)
		s.errorFromErr(w, r, err)
		return
	}

	v := viewOf(snap)
	v.Token = token
	s.jsonResponse(w, http.StatusCreated, v)
}

// handlePrompt poses the next question, or reports completion
func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	snap, err := s.sessions.Prompt(r.Context(), r.PathValue("id"))
	if err != nil {
		s.errorFromErr(w, r, err)
		return
	}
	v := viewOf(snap)
	v.Answers = nil
	s.jsonResponse(w, http.StatusOK, v)
}

// handleSubmitAnswer records the answer to the pending question
func (s *Server) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req types.SubmitAnswerRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.errorFromErr(w, r, err)
		return
	}

	snap, err := s.sessions.Submit(r.Context(), r.PathValue("id"), req.Answer)
	if err != nil {
		s.errorFromErr(w, r, err)
		return
	}
	v := viewOf(snap)
	v.Answers = nil
	s.jsonResponse(w, http.StatusOK, v)
}

// handleGetAnswers returns the session snapshot including collected answers
func (s *Server) handleGetAnswers(w http.ResponseWriter, r *http.Request) {
	snap, err := s.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.errorFromErr(w, r, err)
		return
	}
	v := viewOf(snap)
	if v.Answers == nil {
		v.Answers = []types.Answer{}
	}
	s.jsonResponse(w, http.StatusOK, v)
}

// handleReset discards answers and poses the first question again
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	snap, err := s.sessions.Reset(r.Context(), r.PathValue("id"))
	if err != nil {
		s.errorFromErr(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, viewOf(snap))
}

// handleDeleteSession aborts the interview
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.errorFromErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
