package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/photosmith/photosmith/internal/common"
	"github.com/photosmith/photosmith/internal/search"
)

// searchRepo implements search.LexicalIndex and search.VectorIndex on
// Postgres: full-text ts_rank for the lexical side, pgvector cosine
// distance for the semantic side.
type searchRepo struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewSearchRepository(pool *pgxpool.Pool, log *slog.Logger) *searchRepo {
	if log == nil {
		log = slog.Default()
	}
	return &searchRepo{pool: pool, log: log}
}

var _ search.LexicalIndex = (*searchRepo)(nil)
var _ search.VectorIndex = (*searchRepo)(nil)

// SearchLexical ranks photos by weighted full-text relevance over the
// photo's own text (title A, caption/keywords B) and the AI description
// (C). Photos without AI metadata still participate.
func (r *searchRepo) SearchLexical(ctx context.Context, query string, f search.Filters, limit int) ([]search.LexicalHit, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id,
		       ts_rank_cd(
		           setweight(to_tsvector('english', p.title), 'A') ||
		           setweight(to_tsvector('english', p.caption), 'B') ||
		           setweight(to_tsvector('english', array_to_string(p.keywords, ' ')), 'B') ||
		           setweight(to_tsvector('english', coalesce(m.description, '') || ' ' ||
		               array_to_string(coalesce(m.keywords, '{}'), ' ')), 'C'),
		           websearch_to_tsquery('english', $1)
		       ) AS rank,
		       m.processed_at
		FROM photos p
		LEFT JOIN ai_metadata m ON m.photo_id = p.id
		WHERE (
		           setweight(to_tsvector('english', p.title), 'A') ||
		           setweight(to_tsvector('english', p.caption), 'B') ||
		           setweight(to_tsvector('english', array_to_string(p.keywords, ' ')), 'B') ||
		           setweight(to_tsvector('english', coalesce(m.description, '') || ' ' ||
		               array_to_string(coalesce(m.keywords, '{}'), ' ')), 'C')
		      ) @@ websearch_to_tsquery('english', $1)
		  AND ($2::boolean IS NULL OR coalesce(m.approved, false) = $2)
		ORDER BY rank DESC
		LIMIT $3
	`, query, f.Approved, limit)
	if err != nil {
		r.log.Error("lexical search failed", "err", err)
		return nil, common.NewProcessingError(common.KindStorage, "lexical search", err)
	}
	defer rows.Close()

	var hits []search.LexicalHit
	for rows.Next() {
		var (
			id          uuid.UUID
			rank        float64
			processedAt *time.Time
		)
		if err := rows.Scan(&id, &rank, &processedAt); err != nil {
			return nil, common.NewProcessingError(common.KindStorage, "scan lexical hit", err)
		}
		hits = append(hits, search.LexicalHit{PhotoID: id, Score: rank, ProcessedAt: processedAt})
	}
	return hits, rows.Err()
}

// SearchVector returns cosine similarity of the query embedding against
// every stored photo embedding. Only photos with a non-null embedding
// participate.
func (r *searchRepo) SearchVector(ctx context.Context, embedding []float32, f search.Filters, limit int) ([]search.VectorHit, error) {
	vec := pgvector.NewVector(embedding)
	rows, err := r.pool.Query(ctx, `
		SELECT m.photo_id,
		       1 - (m.embedding <=> $1) AS similarity,
		       m.processed_at
		FROM ai_metadata m
		WHERE m.embedding IS NOT NULL
		  AND ($2::boolean IS NULL OR m.approved = $2)
		ORDER BY m.embedding <=> $1
		LIMIT $3
	`, vec, f.Approved, limit)
	if err != nil {
		r.log.Error("vector search failed", "err", err)
		return nil, common.NewProcessingError(common.KindStorage, "vector search", err)
	}
	defer rows.Close()

	var hits []search.VectorHit
	for rows.Next() {
		var (
			id          uuid.UUID
			sim         float64
			processedAt *time.Time
		)
		if err := rows.Scan(&id, &sim, &processedAt); err != nil {
			return nil, common.NewProcessingError(common.KindStorage, "scan vector hit", err)
		}
		hits = append(hits, search.VectorHit{PhotoID: id, Similarity: sim, ProcessedAt: processedAt})
	}
	return hits, rows.Err()
}
