package repository

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/photosmith/photosmith/internal/common"
	"github.com/photosmith/photosmith/internal/entity"
)

// PhotoRepository reads photo rows owned by the external host sync.
type PhotoRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Photo, error)
	// ListMissingMetadata returns IDs of photos that have no AI metadata
	// row yet, used to seed the processing queue.
	ListMissingMetadata(ctx context.Context, limit int) ([]uuid.UUID, error)
}

type photoRepo struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewPhotoRepository(pool *pgxpool.Pool, log *slog.Logger) PhotoRepository {
	if log == nil {
		log = slog.Default()
	}
	return &photoRepo{pool: pool, log: log}
}

func (r *photoRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.Photo, error) {
	var p entity.Photo
	err := r.pool.QueryRow(ctx, `
		SELECT id, source_url, title, caption, keywords, width, height, created_at
		FROM photos
		WHERE id = $1
	`, id).Scan(&p.ID, &p.SourceURL, &p.Title, &p.Caption, &p.Keywords, &p.Width, &p.Height, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		r.log.Error("photo get failed", "photo_id", id, "err", err)
		return nil, common.NewProcessingError(common.KindStorage, "get photo", err)
	}
	return &p, nil
}

func (r *photoRepo) ListMissingMetadata(ctx context.Context, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id
		FROM photos p
		LEFT JOIN ai_metadata m ON m.photo_id = p.id
		WHERE m.photo_id IS NULL OR m.processed_at IS NULL
		ORDER BY p.created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, common.NewProcessingError(common.KindStorage, "list photos missing metadata", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, common.NewProcessingError(common.KindStorage, "scan photo id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
