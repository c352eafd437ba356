package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/photosmith/photosmith/internal/common"
)

// Filters narrows the candidate set before scoring.
type Filters struct {
	// Approved, when set, keeps only photos whose metadata approval flag
	// matches. Photos without metadata count as unapproved.
	Approved *bool
}

// LexicalHit is a full-text relevance candidate.
type LexicalHit struct {
	PhotoID     uuid.UUID
	Score       float64
	ProcessedAt *time.Time
}

// VectorHit is a cosine-similarity candidate.
type VectorHit struct {
	PhotoID     uuid.UUID
	Similarity  float64
	ProcessedAt *time.Time
}

// Result is one ranked photo with its component and fused scores.
type Result struct {
	PhotoID      uuid.UUID  `json:"photo_id"`
	LexicalScore float64    `json:"lexical_score"`
	VectorScore  float64    `json:"vector_score"`
	Score        float64    `json:"score"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
}

// LexicalIndex produces full-text relevance candidates for a query.
type LexicalIndex interface {
	SearchLexical(ctx context.Context, query string, f Filters, limit int) ([]LexicalHit, error)
}

// VectorIndex produces cosine-similarity candidates for an embedding.
type VectorIndex interface {
	SearchVector(ctx context.Context, embedding []float32, f Filters, limit int) ([]VectorHit, error)
}

// QueryEmbedder turns the query string into a unit vector.
type QueryEmbedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Config holds the ranking knobs. Weights and cutoffs are explicit
// configuration so ranking behavior is tunable and testable.
type Config struct {
	LexicalWeight float64
	VectorWeight  float64
	// MinLexicalScore cuts raw lexical ranks below the threshold.
	MinLexicalScore float64
	// MinCosine cuts raw cosine similarities below the threshold.
	MinCosine float64
	// MaxLimit bounds the per-request result limit.
	MaxLimit int
	// CandidateLimit bounds how many hits each index contributes before
	// fusion.
	CandidateLimit int
}

// Engine fuses lexical and vector relevance into one ranking.
type Engine struct {
	cfg      Config
	lexical  LexicalIndex
	vector   VectorIndex
	embedder QueryEmbedder
	logger   *slog.Logger
}

func NewEngine(cfg Config, lexical LexicalIndex, vector VectorIndex, embedder QueryEmbedder, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 100
	}
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = 200
	}
	if cfg.LexicalWeight == 0 && cfg.VectorWeight == 0 {
		cfg.LexicalWeight, cfg.VectorWeight = 0.5, 0.5
	}
	return &Engine{cfg: cfg, lexical: lexical, vector: vector, embedder: embedder, logger: logger}
}

// Search runs the hybrid query. The embedding path degrades gracefully:
// if the query cannot be embedded, results are ranked by lexical
// relevance alone rather than failing the request. Errors are returned
// only for invalid input or a storage failure on the lexical path.
func (e *Engine) Search(ctx context.Context, query string, limit, offset int, f Filters) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, common.WrapError(common.ErrInvalidInput, "empty query")
	}
	if limit <= 0 || limit > e.cfg.MaxLimit {
		return nil, common.WrapError(common.ErrInvalidInput, "limit out of range")
	}
	if offset < 0 {
		return nil, common.WrapError(common.ErrInvalidInput, "negative offset")
	}

	start := time.Now()

	lexHits, err := e.lexical.SearchLexical(ctx, query, f, e.cfg.CandidateLimit)
	if err != nil {
		e.logger.Error("search.lexical.failed", "error", err)
		return nil, err
	}

	var vecHits []VectorHit
	if e.embedder != nil && e.vector != nil {
		if qvec, embErr := e.embedder.EmbedText(ctx, query); embErr != nil {
			e.logger.Warn("search.embed.degraded", "error", embErr)
		} else if vecHits, err = e.vector.SearchVector(ctx, qvec, f, e.cfg.CandidateLimit); err != nil {
			e.logger.Warn("search.vector.degraded", "error", err)
			vecHits = nil
		}
	}

	results := Fuse(lexHits, vecHits, e.cfg)

	e.logger.Info("search.ok",
		"query_len", len(query),
		"lexical_hits", len(lexHits),
		"vector_hits", len(vecHits),
		"results", len(results),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if offset >= len(results) {
		return []Result{}, nil
	}
	end := offset + limit
	if end > len(results) {
		end = len(results)
	}
	return results[offset:end], nil
}

// Fuse combines the two candidate sets into one stable ranking.
// Candidates below the raw minimum thresholds are excluded; a candidate
// present in only one set scores 0 for the missing component rather
// than being dropped, so a strong lexical match without an embedding is
// still findable.
func Fuse(lexHits []LexicalHit, vecHits []VectorHit, cfg Config) []Result {
	byID := make(map[uuid.UUID]*Result)

	maxLex := 0.0
	for _, h := range lexHits {
		if h.Score >= cfg.MinLexicalScore && h.Score > maxLex {
			maxLex = h.Score
		}
	}
	for _, h := range lexHits {
		if h.Score < cfg.MinLexicalScore {
			continue
		}
		r := &Result{PhotoID: h.PhotoID, ProcessedAt: h.ProcessedAt}
		if maxLex > 0 {
			r.LexicalScore = h.Score / maxLex
		}
		byID[h.PhotoID] = r
	}
	for _, h := range vecHits {
		if h.Similarity < cfg.MinCosine {
			continue
		}
		r, ok := byID[h.PhotoID]
		if !ok {
			r = &Result{PhotoID: h.PhotoID, ProcessedAt: h.ProcessedAt}
			byID[h.PhotoID] = r
		}
		if r.ProcessedAt == nil {
			r.ProcessedAt = h.ProcessedAt
		}
		// Map cosine [-1,1] to [0,1] so both components share a scale.
		r.VectorScore = (h.Similarity + 1) / 2
	}

	results := make([]Result, 0, len(byID))
	for _, r := range byID {
		r.Score = cfg.LexicalWeight*r.LexicalScore + cfg.VectorWeight*r.VectorScore
		results = append(results, *r)
	}

	// Deterministic pre-sort so the stable sort below yields the same
	// order for equal fused scores regardless of map iteration.
	sort.Slice(results, func(i, j int) bool {
		return tieLess(results[i], results[j])
	})
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results
}

// tieLess orders equal-score results: more recently processed first,
// then lower photo id.
func tieLess(a, b Result) bool {
	at, bt := int64(0), int64(0)
	if a.ProcessedAt != nil {
		at = a.ProcessedAt.UnixNano()
	}
	if b.ProcessedAt != nil {
		bt = b.ProcessedAt.UnixNano()
	}
	if at != bt {
		return at > bt
	}
	return a.PhotoID.String() < b.PhotoID.String()
}
