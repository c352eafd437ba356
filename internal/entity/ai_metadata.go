package entity

import (
	"time"

	"github.com/google/uuid"
	pgvector "github.com/pgvector/pgvector-go"
)

// AIMetadata holds the model-derived metadata for one photo.
// At most one row per photo; the pipeline replaces the row wholesale
// on every successful run.
type AIMetadata struct {
	PhotoID          uuid.UUID        `json:"photo_id"`
	Description      string           `json:"description"`
	Keywords         []string         `json:"keywords"`
	Embedding        *pgvector.Vector `json:"-"`
	ConfidenceScore  float32          `json:"confidence_score"`
	ProcessingTimeMs int64            `json:"processing_time_ms"`
	ModelVersion     string           `json:"model_version"`
	ProcessedAt      *time.Time       `json:"processed_at,omitempty"`
	Approved         bool             `json:"approved"`
}
