package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/photosmith/photosmith/internal/common"
	"github.com/photosmith/photosmith/internal/entity"
)

// MetadataUpsert is everything a successful pipeline run produces.
// The upsert is all-or-nothing: callers build the full value before
// touching storage, so a failed vision or embedding call never leaves
// a half-written row.
type MetadataUpsert struct {
	PhotoID          uuid.UUID
	Description      string
	Keywords         []string
	Embedding        []float32
	ConfidenceScore  float32
	ProcessingTimeMs int64
	ModelVersion     string
	ProcessedAt      time.Time
}

// MetadataRepository persists per-photo AI metadata.
type MetadataRepository interface {
	// Upsert replaces the metadata row for the photo wholesale. No merge
	// semantics: every column is overwritten, approved is preserved.
	Upsert(ctx context.Context, up MetadataUpsert) error
	GetByPhotoID(ctx context.Context, photoID uuid.UUID) (*entity.AIMetadata, error)
	SetApproved(ctx context.Context, photoID uuid.UUID, approved bool) error
	// ListAll returns the corpus joined with photo titles, for export.
	ListAll(ctx context.Context) ([]ExportRow, error)
}

// ExportRow is one line of the corpus export.
type ExportRow struct {
	PhotoID         uuid.UUID
	Title           string
	Description     string
	Keywords        []string
	ConfidenceScore float32
	ModelVersion    string
	ProcessedAt     *time.Time
	Approved        bool
}

type metadataRepo struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewMetadataRepository(pool *pgxpool.Pool, log *slog.Logger) MetadataRepository {
	if log == nil {
		log = slog.Default()
	}
	return &metadataRepo{pool: pool, log: log}
}

func (r *metadataRepo) Upsert(ctx context.Context, up MetadataUpsert) error {
	vec := pgvector.NewVector(up.Embedding)
	_, err := r.pool.Exec(ctx, `
		INSERT INTO ai_metadata
			(photo_id, description, keywords, embedding, confidence_score,
			 processing_time_ms, model_version, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (photo_id) DO UPDATE SET
			description        = EXCLUDED.description,
			keywords           = EXCLUDED.keywords,
			embedding          = EXCLUDED.embedding,
			confidence_score   = EXCLUDED.confidence_score,
			processing_time_ms = EXCLUDED.processing_time_ms,
			model_version      = EXCLUDED.model_version,
			processed_at       = EXCLUDED.processed_at
	`, up.PhotoID, up.Description, up.Keywords, vec, up.ConfidenceScore,
		up.ProcessingTimeMs, up.ModelVersion, up.ProcessedAt)
	if err != nil {
		r.log.Error("metadata upsert failed", "photo_id", up.PhotoID, "err", err)
		return common.NewProcessingError(common.KindStorage, "upsert metadata", err)
	}
	r.log.Info("metadata upserted",
		"photo_id", up.PhotoID,
		"keywords", len(up.Keywords),
		"model_version", up.ModelVersion,
	)
	return nil
}

func (r *metadataRepo) GetByPhotoID(ctx context.Context, photoID uuid.UUID) (*entity.AIMetadata, error) {
	var m entity.AIMetadata
	var vec *pgvector.Vector
	err := r.pool.QueryRow(ctx, `
		SELECT photo_id, description, keywords, embedding, confidence_score,
		       processing_time_ms, model_version, processed_at, approved
		FROM ai_metadata
		WHERE photo_id = $1
	`, photoID).Scan(&m.PhotoID, &m.Description, &m.Keywords, &vec, &m.ConfidenceScore,
		&m.ProcessingTimeMs, &m.ModelVersion, &m.ProcessedAt, &m.Approved)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, common.NewProcessingError(common.KindStorage, "get metadata", err)
	}
	m.Embedding = vec
	return &m, nil
}

func (r *metadataRepo) SetApproved(ctx context.Context, photoID uuid.UUID, approved bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE ai_metadata SET approved = $2 WHERE photo_id = $1
	`, photoID, approved)
	if err != nil {
		return common.NewProcessingError(common.KindStorage, "set approved", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *metadataRepo) ListAll(ctx context.Context) ([]ExportRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT m.photo_id, p.title, m.description, m.keywords,
		       m.confidence_score, m.model_version, m.processed_at, m.approved
		FROM ai_metadata m
		JOIN photos p ON p.id = m.photo_id
		ORDER BY m.processed_at DESC NULLS LAST
	`)
	if err != nil {
		return nil, common.NewProcessingError(common.KindStorage, "list metadata", err)
	}
	defer rows.Close()

	var out []ExportRow
	for rows.Next() {
		var er ExportRow
		if err := rows.Scan(&er.PhotoID, &er.Title, &er.Description, &er.Keywords,
			&er.ConfidenceScore, &er.ModelVersion, &er.ProcessedAt, &er.Approved); err != nil {
			return nil, common.NewProcessingError(common.KindStorage, "scan export row", err)
		}
		out = append(out, er)
	}
	return out, rows.Err()
}
