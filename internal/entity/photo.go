package entity

import (
	"time"

	"github.com/google/uuid"
)

// Photo is a row from the photos table, owned by the external host sync.
// This service reads it but never writes it.
type Photo struct {
	ID        uuid.UUID `json:"id"`
	SourceURL string    `json:"source_url"`
	Title     string    `json:"title"`
	Caption   string    `json:"caption"`
	Keywords  []string  `json:"keywords"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	CreatedAt time.Time `json:"created_at"`
}
