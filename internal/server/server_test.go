package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/photosmith/photosmith/constants"
	"github.com/photosmith/photosmith/internal/common"
	"github.com/photosmith/photosmith/internal/entity"
	"github.com/photosmith/photosmith/internal/export"
	"github.com/photosmith/photosmith/internal/pipeline"
	"github.com/photosmith/photosmith/internal/repository"
	"github.com/photosmith/photosmith/internal/retry"
	"github.com/photosmith/photosmith/internal/search"
)

type stubQueueRepo struct {
	accepted bool
	status   constants.QueueStatus
	counts   entity.QueueCounts
}

func (s *stubQueueRepo) Enqueue(ctx context.Context, photoID uuid.UUID, priority, maxAttempts int) (bool, constants.QueueStatus, error) {
	status := s.status
	if status == "" {
		status = constants.QueueStatusPending
	}
	return s.accepted, status, nil
}

func (s *stubQueueRepo) Claim(ctx context.Context, p repository.ClaimParams) ([]*entity.QueueItem, error) {
	return nil, nil
}

func (s *stubQueueRepo) Heartbeat(ctx context.Context, itemID uuid.UUID, lease time.Duration) error {
	return nil
}

func (s *stubQueueRepo) MarkCompleted(ctx context.Context, itemID uuid.UUID) error { return nil }

func (s *stubQueueRepo) MarkFailed(ctx context.Context, itemID uuid.UUID, lastError string) error {
	return nil
}

func (s *stubQueueRepo) ReturnToPending(ctx context.Context, itemID uuid.UUID, lastError string, delay time.Duration) error {
	return nil
}

func (s *stubQueueRepo) RevertInFlight(ctx context.Context) (int, error) { return 3, nil }

func (s *stubQueueRepo) CountsByStatus(ctx context.Context) (entity.QueueCounts, error) {
	return s.counts, nil
}

type stubMetadataRepo struct {
	approvedErr error
}

func (s *stubMetadataRepo) Upsert(ctx context.Context, up repository.MetadataUpsert) error {
	return nil
}

func (s *stubMetadataRepo) GetByPhotoID(ctx context.Context, photoID uuid.UUID) (*entity.AIMetadata, error) {
	return nil, common.ErrNotFound
}

func (s *stubMetadataRepo) SetApproved(ctx context.Context, photoID uuid.UUID, approved bool) error {
	return s.approvedErr
}

func (s *stubMetadataRepo) ListAll(ctx context.Context) ([]repository.ExportRow, error) {
	return []repository.ExportRow{}, nil
}

type stubLexical struct{ hits []search.LexicalHit }

func (s *stubLexical) SearchLexical(ctx context.Context, query string, f search.Filters, limit int) ([]search.LexicalHit, error) {
	return s.hits, nil
}

type stubProcessor struct{}

func (stubProcessor) ProcessPhoto(ctx context.Context, photoID uuid.UUID, progress pipeline.ProgressFunc) error {
	return nil
}

func newTestServer(queue repository.QueueRepository, metadata repository.MetadataRepository, lex search.LexicalIndex) http.Handler {
	engine := search.NewEngine(search.Config{MaxLimit: 100}, lex, nil, nil, nil)
	controller := pipeline.NewController(queue, stubProcessor{}, retry.DefaultPolicy(), nil)
	exporter := export.NewService(metadata, nil)
	srv := NewServer(nil, nil, queue, metadata, engine, controller, exporter, common.QueueConfig{MaxAttempts: 3})
	return srv.Router()
}

func TestHandleEnqueue(t *testing.T) {
	photoID := uuid.New().String()
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"valid", `{"photo_id":"` + photoID + `","priority":5}`, http.StatusOK},
		{"bad uuid", `{"photo_id":"not-a-uuid"}`, http.StatusBadRequest},
		{"malformed body", `{"photo_id":`, http.StatusBadRequest},
	}
	handler := newTestServer(&stubQueueRepo{accepted: true}, &stubMetadataRepo{}, &stubLexical{})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/queue", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body)
			}
		})
	}
}

func TestHandleEnqueue_ReportsNotAccepted(t *testing.T) {
	handler := newTestServer(&stubQueueRepo{accepted: false}, &stubMetadataRepo{}, &stubLexical{})
	body := `{"photo_id":"` + uuid.New().String() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/queue", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var resp enqueueResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Accepted {
		t.Error("already-queued photo must report accepted=false")
	}
}

func TestHandleEnqueue_ReportsRowStatusWhenAlreadyClaimed(t *testing.T) {
	queue := &stubQueueRepo{accepted: false, status: constants.QueueStatusProcessing}
	handler := newTestServer(queue, &stubMetadataRepo{}, &stubLexical{})
	body := `{"photo_id":"` + uuid.New().String() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/queue", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var resp enqueueResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != constants.QueueStatusProcessing {
		t.Errorf("status = %q, want the row's actual PROCESSING state", resp.Status)
	}
}

func TestHandleEnqueueBatch(t *testing.T) {
	handler := newTestServer(&stubQueueRepo{accepted: true}, &stubMetadataRepo{}, &stubLexical{})
	good := uuid.New().String()
	body := `{"photo_ids":["` + good + `","nonsense"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/queue/batch", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp enqueueBatchResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Accepted) != 1 || resp.Accepted[0] != good {
		t.Errorf("accepted = %v, want [%s]", resp.Accepted, good)
	}
	if _, ok := resp.Rejected["nonsense"]; !ok {
		t.Errorf("rejected = %v, want nonsense entry", resp.Rejected)
	}
}

func TestHandleQueueStatus(t *testing.T) {
	queue := &stubQueueRepo{counts: entity.QueueCounts{Pending: 7, Completed: 3}}
	handler := newTestServer(queue, &stubMetadataRepo{}, &stubLexical{})
	req := httptest.NewRequest(http.MethodGet, "/api/queue/status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var counts entity.QueueCounts
	if err := json.NewDecoder(rec.Body).Decode(&counts); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if counts.Pending != 7 || counts.Completed != 3 || counts.InFlight != 0 {
		t.Errorf("counts = %+v", counts)
	}
}

func TestHandleQueueCancel(t *testing.T) {
	handler := newTestServer(&stubQueueRepo{}, &stubMetadataRepo{}, &stubLexical{})
	req := httptest.NewRequest(http.MethodPost, "/api/queue/cancel", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp cancelResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Reverted != 3 {
		t.Errorf("reverted = %d, want 3", resp.Reverted)
	}
}

func TestHandleSearch(t *testing.T) {
	photoID := uuid.New()
	lex := &stubLexical{hits: []search.LexicalHit{{PhotoID: photoID, Score: 0.8}}}
	handler := newTestServer(&stubQueueRepo{}, &stubMetadataRepo{}, lex)

	tests := []struct {
		name       string
		target     string
		wantStatus int
	}{
		{"ok", "/api/search?q=beach", http.StatusOK},
		{"empty query", "/api/search?q=", http.StatusBadRequest},
		{"bad limit", "/api/search?q=beach&limit=abc", http.StatusBadRequest},
		{"limit too big", "/api/search?q=beach&limit=500", http.StatusBadRequest},
		{"negative offset", "/api/search?q=beach&offset=-1", http.StatusBadRequest},
		{"bad approved", "/api/search?q=beach&approved=maybe", http.StatusBadRequest},
		{"approved filter", "/api/search?q=beach&approved=true", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body)
			}
		})
	}
}

func TestHandleApproval(t *testing.T) {
	photoID := uuid.New()

	tests := []struct {
		name       string
		metadata   *stubMetadataRepo
		target     string
		body       string
		wantStatus int
	}{
		{"ok", &stubMetadataRepo{}, "/api/photos/" + photoID.String() + "/approval", `{"approved":true}`, http.StatusOK},
		{"missing field", &stubMetadataRepo{}, "/api/photos/" + photoID.String() + "/approval", `{}`, http.StatusBadRequest},
		{"bad uuid", &stubMetadataRepo{}, "/api/photos/nope/approval", `{"approved":true}`, http.StatusBadRequest},
		{"unknown photo", &stubMetadataRepo{approvedErr: common.ErrNotFound}, "/api/photos/" + photoID.String() + "/approval", `{"approved":true}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := newTestServer(&stubQueueRepo{}, tt.metadata, &stubLexical{})
			req := httptest.NewRequest(http.MethodPatch, tt.target, strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestHandleExport(t *testing.T) {
	handler := newTestServer(&stubQueueRepo{}, &stubMetadataRepo{}, &stubLexical{})
	req := httptest.NewRequest(http.MethodGet, "/api/export", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Errorf("content type = %q", ct)
	}
	if rec.Body.Len() == 0 {
		t.Error("export body is empty")
	}
}
