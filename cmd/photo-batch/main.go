package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
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
)

// photo-batch seeds the queue from photos missing AI metadata, drains
// it in the foreground, and optionally writes an XLSX of the corpus.
func main() {
	var (
		limit    = flag.Int("limit", 1000, "max photos to enqueue")
		priority = flag.Int("priority", 0, "queue priority for seeded items")
		out      = flag.String("out", "", "output XLSX file path (optional)")
		seedOnly = flag.Bool("seed-only", false, "enqueue without draining")
	)
	flag.Parse()

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

	ctx := context.Background()

	pool, err := repository.Open(ctx, repository.Config{
		DSN:             cfg.Database.DSN,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		DialTimeout:     cfg.Database.DialTimeout,
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

	photosRepo := repository.NewPhotoRepository(pool, logger)
	metadataRepo := repository.NewMetadataRepository(pool, logger)
	queueRepo := repository.NewQueueRepository(pool, logger)

	// Seed
	ids, err := photosRepo.ListMissingMetadata(ctx, *limit)
	if err != nil {
		logger.Error("list photos missing metadata", "error", err)
		os.Exit(1)
	}
	seeded := 0
	for _, id := range ids {
		accepted, _, err := queueRepo.Enqueue(ctx, id, *priority, cfg.Queue.MaxAttempts)
		if err != nil {
			logger.Error("enqueue failed", "photo_id", id, "error", err)
			continue
		}
		if accepted {
			seeded++
		}
	}
	logger.Info("queue seeded", "candidates", len(ids), "enqueued", seeded)

	if !*seedOnly {
		drain(ctx, cfg, logger, queueRepo, photosRepo, metadataRepo)
	}

	if *out != "" {
		exporter := export.NewService(metadataRepo, logger)
		data, err := exporter.ExportMetadataXLSX(ctx)
		if err != nil {
			logger.Error("export failed", "error", err)
			os.Exit(1)
		}
		if err := os.WriteFile(*out, data, 0o644); err != nil {
			logger.Error("write output file", "error", err)
			os.Exit(1)
		}
		logger.Info("export written", "path", *out, "bytes", len(data))
	}

	counts, err := queueRepo.CountsByStatus(ctx)
	if err == nil {
		fmt.Printf("Batch complete: pending=%d processing=%d completed=%d failed=%d\n",
			counts.Pending, counts.Processing, counts.Completed, counts.Failed)
	}
}

// drain claims and processes items until the queue has nothing ready.
func drain(
	ctx context.Context,
	cfg *common.Config,
	logger *slog.Logger,
	queueRepo repository.QueueRepository,
	photosRepo repository.PhotoRepository,
	metadataRepo repository.MetadataRepository,
) {
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

	fetcher := imaging.NewHTTPFetcher(30*time.Second, 0)
	preparer := imaging.NewPreparer(fetcher, logger)
	processor := pipeline.NewProcessor(logger, photosRepo, metadataRepo, preparer,
		visionClient, embedder, visionClient.ModelVersion())

	policy := retry.Policy{
		MaxAttempts:        cfg.Queue.MaxAttempts,
		StorageMaxAttempts: cfg.Queue.MaxAttempts + 2,
		BackoffBase:        cfg.Queue.BackoffBase,
		BackoffMax:         cfg.Queue.BackoffMax,
	}

	processed, failures := 0, 0
	for {
		items, err := queueRepo.Claim(ctx, repository.ClaimParams{
			BatchSize: cfg.Queue.BatchSize,
			Lease:     cfg.Queue.Lease,
		})
		if err != nil {
			logger.Error("claim failed", "error", err)
			return
		}
		if len(items) == 0 {
			break
		}
		for _, item := range items {
			heartbeat := func(hbCtx context.Context) {
				if err := queueRepo.Heartbeat(hbCtx, item.ID, cfg.Queue.Lease); err != nil {
					logger.Warn("heartbeat failed", "item_id", item.ID, "error", err)
				}
			}
			err := processor.ProcessPhoto(ctx, item.PhotoID, heartbeat)
			if err == nil {
				if mErr := queueRepo.MarkCompleted(ctx, item.ID); mErr != nil {
					logger.Error("mark completed failed", "item_id", item.ID, "error", mErr)
				}
				processed++
				continue
			}
			failures++
			if policy.Decide(err, item.Attempts, item.MaxAttempts) == retry.OutcomeRetry {
				if rErr := queueRepo.ReturnToPending(ctx, item.ID, err.Error(), policy.Backoff(item.Attempts)); rErr != nil {
					logger.Error("return to pending failed", "item_id", item.ID, "error", rErr)
				}
			} else if fErr := queueRepo.MarkFailed(ctx, item.ID, err.Error()); fErr != nil {
				logger.Error("mark failed failed", "item_id", item.ID, "error", fErr)
			}
		}
	}
	logger.Info("queue drained", "processed", processed, "failures", failures)
}
