package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/photosmith/photosmith/internal/common"
)

type approvalRequest struct {
	Approved *bool `json:"approved"`
}

type approvalResponse struct {
	PhotoID  string `json:"photo_id"`
	Approved bool   `json:"approved"`
}

func (s *Server) handleApproval(w http.ResponseWriter, r *http.Request) {
	photoID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, common.WrapError(common.ErrInvalidInput, "photo id must be a UUID"))
		return
	}
	var req approvalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, common.WrapError(common.ErrInvalidInput, "malformed body"))
		return
	}
	if req.Approved == nil {
		s.writeError(w, r, common.WrapError(common.ErrInvalidInput, "approved is required"))
		return
	}

	if err := s.metadata.SetApproved(r.Context(), photoID, *req.Approved); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, approvalResponse{
		PhotoID:  photoID.String(),
		Approved: *req.Approved,
	})
}
