package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/photosmith/photosmith/internal/embedding"
	"github.com/photosmith/photosmith/internal/imaging"
	"github.com/photosmith/photosmith/internal/llm"
	"github.com/photosmith/photosmith/internal/repository"
)

// ImagePreparer is the slice of internal/imaging the processor needs.
type ImagePreparer interface {
	PrepareURL(ctx context.Context, url string) (imaging.Prepared, error)
}

// ProgressFunc is called after each completed external step so the
// caller can extend the item's lease while the run is alive.
type ProgressFunc func(ctx context.Context)

// Processor runs the metadata pipeline for one photo:
// prepare -> describe -> embed -> persist. It owns no queue state; the
// controller maps its classified errors onto queue transitions.
type Processor struct {
	Logger       *slog.Logger
	Photos       repository.PhotoRepository
	Metadata     repository.MetadataRepository
	Preparer     ImagePreparer
	Vision       llm.VisionDescriber
	Embedder     embedding.Embedder
	ModelVersion string

	VisionTimeout time.Duration
	EmbedTimeout  time.Duration
}

func NewProcessor(
	logger *slog.Logger,
	photos repository.PhotoRepository,
	metadata repository.MetadataRepository,
	preparer ImagePreparer,
	vision llm.VisionDescriber,
	embedder embedding.Embedder,
	modelVersion string,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		Logger:        logger,
		Photos:        photos,
		Metadata:      metadata,
		Preparer:      preparer,
		Vision:        vision,
		Embedder:      embedder,
		ModelVersion:  modelVersion,
		VisionTimeout: 45 * time.Second,
		EmbedTimeout:  20 * time.Second,
	}
}

// ProcessPhoto executes the full pipeline for photoID. The metadata
// upsert happens only after every field is computed, so a failure in
// any step leaves the previous row untouched. Re-running replaces the
// row wholesale.
func (p *Processor) ProcessPhoto(ctx context.Context, photoID uuid.UUID, progress ProgressFunc) error {
	start := time.Now()
	if progress == nil {
		progress = func(context.Context) {}
	}

	photo, err := p.Photos.GetByID(ctx, photoID)
	if err != nil {
		p.Logger.Error("pipeline.load_photo.failed", "photo_id", photoID, "error", err)
		return fmt.Errorf("load photo: %w", err)
	}

	prepared, err := p.Preparer.PrepareURL(ctx, photo.SourceURL)
	if err != nil {
		p.Logger.Error("pipeline.prepare.failed", "photo_id", photoID, "error", err)
		return fmt.Errorf("prepare image: %w", err)
	}
	progress(ctx)

	visionCtx, cancelVision := context.WithTimeout(ctx, p.VisionTimeout)
	result, _, err := p.Vision.Describe(visionCtx, prepared.Bytes)
	cancelVision()
	if err != nil {
		p.Logger.Error("pipeline.describe.failed", "photo_id", photoID, "error", err)
		return fmt.Errorf("describe image: %w", err)
	}
	progress(ctx)

	embedText := result.Description
	if len(result.Keywords) > 0 {
		embedText += " " + strings.Join(result.Keywords, " ")
	}
	embedCtx, cancelEmbed := context.WithTimeout(ctx, p.EmbedTimeout)
	vector, err := p.Embedder.EmbedImage(embedCtx, prepared.Bytes, embedText)
	cancelEmbed()
	if err != nil {
		p.Logger.Error("pipeline.embed.failed", "photo_id", photoID, "error", err)
		return fmt.Errorf("embed image: %w", err)
	}
	progress(ctx)

	now := time.Now().UTC()
	up := repository.MetadataUpsert{
		PhotoID:          photoID,
		Description:      result.Description,
		Keywords:         result.Keywords,
		Embedding:        vector,
		ConfidenceScore:  result.Confidence,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		ModelVersion:     p.ModelVersion,
		ProcessedAt:      now,
	}
	if err := p.Metadata.Upsert(ctx, up); err != nil {
		p.Logger.Error("pipeline.persist.failed", "photo_id", photoID, "error", err)
		return fmt.Errorf("persist metadata: %w", err)
	}

	p.Logger.Info("pipeline.ok",
		"photo_id", photoID,
		"keywords", len(result.Keywords),
		"confidence", result.Confidence,
		"prepared_bytes", len(prepared.Bytes),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
