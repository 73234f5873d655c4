package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/ckd-assistant/internal/types"
)

type searchResponse struct {
	Query   string           `json:"query"`
	K       int              `json:"k"`
	Results []types.Evidence `json:"results"`
}

// handleKnowledgeSearch returns the top-k passages for a query
func (s *Server) handleKnowledgeSearch(w http.ResponseWriter, r *http.Request) {
	req := types.KnowledgeSearchRequest{Query: strings.TrimSpace(r.URL.Query().Get("q"))}
	if raw := r.URL.Query().Get("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.errorFromErr(w, r, &ErrValidation{Field: "k", Message: "must be an integer between 1 and 50"})
			return
		}
		req.K = n
	}
	if err := req.Validate(); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 && verrs[0].Field() == "K" {
			s.errorFromErr(w, r, &ErrValidation{Field: "k", Message: "must be an integer between 1 and 50"})
			return
		}
		s.errorFromErr(w, r, &ErrValidation{Field: "q", Message: "query of at least 2 characters is required"})
		return
	}

	k := req.K
	if k == 0 {
		k = s.retrievalK
	}
	query := req.Query

	results, err := s.knowledge.Search(r.Context(), query, k)
	if err != nil {
		s.errorFromErr(w, r, err)
		return
	}
	if results == nil {
		results = []types.Evidence{}
	}
	s.jsonResponse(w, http.StatusOK, searchResponse{Query: query, K: k, Results: results})
}
