package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/photosmith/photosmith/internal/common"
	"github.com/photosmith/photosmith/internal/export"
	"github.com/photosmith/photosmith/internal/pipeline"
	"github.com/photosmith/photosmith/internal/repository"
	"github.com/photosmith/photosmith/internal/search"
)

// Server exposes the queue, search and curation surface over HTTP.
type Server struct {
	logger     *slog.Logger
	pool       *pgxpool.Pool
	queue      repository.QueueRepository
	metadata   repository.MetadataRepository
	engine     *search.Engine
	controller *pipeline.Controller
	exporter   *export.Service
	queueCfg   common.QueueConfig
}

func NewServer(
	logger *slog.Logger,
	pool *pgxpool.Pool,
	queue repository.QueueRepository,
	metadata repository.MetadataRepository,
	engine *search.Engine,
	controller *pipeline.Controller,
	exporter *export.Service,
	queueCfg common.QueueConfig,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		logger:     logger,
		pool:       pool,
		queue:      queue,
		metadata:   metadata,
		engine:     engine,
		controller: controller,
		exporter:   exporter,
		queueCfg:   queueCfg,
	}
}

// Router builds the chi routing tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealthz)

	r.Route("/api", func(r chi.Router) {
		r.Post("/queue", s.handleEnqueue)
		r.Post("/queue/batch", s.handleEnqueueBatch)
		r.Get("/queue/status", s.handleQueueStatus)
		r.Post("/queue/cancel", s.handleQueueCancel)
		r.Post("/queue/resume", s.handleQueueResume)
		r.Get("/search", s.handleSearch)
		r.Patch("/photos/{id}/approval", s.handleApproval)
		r.Get("/export", s.handleExport)
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := middleware.GetReqID(r.Context())
		r = r.WithContext(common.WithRequestID(r.Context(), reqID))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http.request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"request_id", reqID,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := repository.HealthCheck(r.Context(), s.pool, 2*time.Second, s.logger); err != nil {
		s.writeError(w, r, common.NewProcessingError(common.KindStorage, "db ping", err))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
