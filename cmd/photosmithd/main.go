package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/photosmith/photosmith/internal/common"
	"github.com/photosmith/photosmith/internal/embedding"
	embedopenai "github.com/photosmith/photosmith/internal/embedding/openai"
	"github.com/photosmith/photosmith/internal/export"
	"github.com/photosmith/photosmith/internal/imaging"
	visionopenai "github.com/photosmith/photosmith/internal/llm/openai"
	"github.com/photosmith/photosmith/internal/pipeline"
	"github.com/photosmith/photosmith/internal/repository"
	"github.com/photosmith/photosmith/internal/retry"
	"github.com/photosmith/photosmith/internal/search"
	"github.com/photosmith/photosmith/internal/server"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, using environment")
	}

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := repository.Open(ctx, repository.Config{
		DSN:              cfg.Database.DSN,
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		MaxConnLifetime:  cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
		DialTimeout:      cfg.Database.DialTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	}, logger)
	if err != nil {
		logger.Error("open db", "error", err)
		os.Exit(1)
	}
	defer repository.Close(pool, logger)

	if err := repository.Migrate(cfg.Database.DSN, logger); err != nil {
		logger.Error("migrate", "error", err)
		os.Exit(1)
	}
	if err := repository.HealthCheck(ctx, pool, 3*time.Second, logger); err != nil {
		logger.Error("db health failed", "error", err)
		os.Exit(1)
	}

	// Repositories
	photosRepo := repository.NewPhotoRepository(pool, logger)
	metadataRepo := repository.NewMetadataRepository(pool, logger)
	queueRepo := repository.NewQueueRepository(pool, logger)
	searchRepo := repository.NewSearchRepository(pool, logger)

	// Provider clients
	visionClient := visionopenai.NewClient(visionopenai.Config{
		APIKey:      cfg.Vision.APIKey,
		BaseURL:     cfg.Vision.BaseURL,
		Model:       cfg.Vision.Model,
		Temperature: cfg.Vision.Temperature,
		Timeout:     cfg.Vision.Timeout,
	}, logger)
	var embedder embedding.Embedder = embedopenai.NewClient(embedopenai.Config{
		APIKey:    cfg.Embed.APIKey,
		BaseURL:   cfg.Embed.BaseURL,
		Model:     cfg.Embed.Model,
		Dimension: cfg.Embed.Dimension,
		Timeout:   cfg.Embed.Timeout,
	}, logger)

	// Pipeline
	fetcher := imaging.NewHTTPFetcher(30*time.Second, 0)
	preparer := imaging.NewPreparer(fetcher, logger)
	processor := pipeline.NewProcessor(logger, photosRepo, metadataRepo, preparer,
		visionClient, embedder, visionClient.ModelVersion())
	processor.VisionTimeout = cfg.Vision.Timeout
	processor.EmbedTimeout = cfg.Embed.Timeout

	policy := retry.Policy{
		MaxAttempts:        cfg.Queue.MaxAttempts,
		StorageMaxAttempts: cfg.Queue.MaxAttempts + 2,
		BackoffBase:        cfg.Queue.BackoffBase,
		BackoffMax:         cfg.Queue.BackoffMax,
	}
	controller := pipeline.NewController(queueRepo, processor, policy, logger,
		pipeline.WithWorkers(cfg.Queue.Workers),
		pipeline.WithBatchSize(cfg.Queue.BatchSize),
		pipeline.WithPollInterval(cfg.Queue.PollInterval),
		pipeline.WithLease(cfg.Queue.Lease),
	)
	go controller.Run(ctx)

	// Search
	engine := search.NewEngine(search.Config{
		LexicalWeight:   cfg.Search.LexicalWeight,
		VectorWeight:    cfg.Search.VectorWeight,
		MinLexicalScore: cfg.Search.MinLexicalRank,
		MinCosine:       cfg.Search.MinCosine,
		MaxLimit:        cfg.Search.MaxLimit,
	}, searchRepo, searchRepo, embedder, logger)

	exporter := export.NewService(metadataRepo, logger)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.NewServer(logger, pool, queueRepo, metadataRepo, engine, controller, exporter, cfg.Queue).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http server listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	logger.Info("stopped")
}
