package server

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/photosmith/photosmith/constants"
	"github.com/photosmith/photosmith/internal/common"
)

type enqueueRequest struct {
	PhotoID  string `json:"photo_id"`
	Priority int    `json:"priority"`
}

type enqueueResponse struct {
	PhotoID  string                `json:"photo_id"`
	Accepted bool                  `json:"accepted"`
	Status   constants.QueueStatus `json:"status"`
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, common.WrapError(common.ErrInvalidInput, "malformed body"))
		return
	}
	photoID, err := uuid.Parse(req.PhotoID)
	if err != nil {
		s.writeError(w, r, common.WrapError(common.ErrInvalidInput, "photo_id must be a UUID"))
		return
	}

	accepted, status, err := s.queue.Enqueue(r.Context(), photoID, req.Priority, s.queueCfg.MaxAttempts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, enqueueResponse{
		PhotoID:  photoID.String(),
		Accepted: accepted,
		Status:   status,
	})
}

type enqueueBatchRequest struct {
	PhotoIDs []string `json:"photo_ids"`
	Priority int      `json:"priority"`
}

type enqueueBatchResponse struct {
	Accepted []string          `json:"accepted"`
	Rejected map[string]string `json:"rejected,omitempty"`
}

func (s *Server) handleEnqueueBatch(w http.ResponseWriter, r *http.Request) {
	var req enqueueBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, common.WrapError(common.ErrInvalidInput, "malformed body"))
		return
	}
	if len(req.PhotoIDs) == 0 {
		s.writeError(w, r, common.WrapError(common.ErrInvalidInput, "photo_ids is empty"))
		return
	}

	resp := enqueueBatchResponse{
		Accepted: make([]string, 0, len(req.PhotoIDs)),
		Rejected: make(map[string]string),
	}
	for _, raw := range req.PhotoIDs {
		photoID, err := uuid.Parse(raw)
		if err != nil {
			resp.Rejected[raw] = "not a UUID"
			continue
		}
		accepted, _, err := s.queue.Enqueue(r.Context(), photoID, req.Priority, s.queueCfg.MaxAttempts)
		if err != nil {
			resp.Rejected[raw] = err.Error()
			continue
		}
		if !accepted {
			resp.Rejected[raw] = "already queued"
			continue
		}
		resp.Accepted = append(resp.Accepted, raw)
	}
	if len(resp.Rejected) == 0 {
		resp.Rejected = nil
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := s.queue.CountsByStatus(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	counts.InFlight = s.controller.InFlight()
	s.writeJSON(w, http.StatusOK, counts)
}

type cancelResponse struct {
	Reverted int `json:"reverted"`
}

func (s *Server) handleQueueCancel(w http.ResponseWriter, r *http.Request) {
	reverted, err := s.controller.CancelBatch(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cancelResponse{Reverted: reverted})
}

func (s *Server) handleQueueResume(w http.ResponseWriter, r *http.Request) {
	s.controller.Resume()
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}
