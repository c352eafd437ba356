package server

import (
	"net/http"
	"strconv"

	"github.com/photosmith/photosmith/internal/common"
	"github.com/photosmith/photosmith/internal/search"
)

type searchResponse struct {
	Query   string          `json:"query"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
	Results []search.Result `json:"results"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, r, common.WrapError(common.ErrInvalidInput, "limit must be an integer"))
			return
		}
		limit = n
	}
	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, r, common.WrapError(common.ErrInvalidInput, "offset must be an integer"))
			return
		}
		offset = n
	}

	var filters search.Filters
	if raw := r.URL.Query().Get("approved"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			s.writeError(w, r, common.WrapError(common.ErrInvalidInput, "approved must be a boolean"))
			return
		}
		filters.Approved = &v
	}

	results, err := s.engine.Search(r.Context(), q, limit, offset, filters)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, searchResponse{
		Query:   q,
		Limit:   limit,
		Offset:  offset,
		Results: results,
	})
}
