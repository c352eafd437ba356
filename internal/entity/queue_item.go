package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/photosmith/photosmith/constants"
)

// QueueItem is a row in processing_queue. One row per photo; re-enqueue
// reuses the row so the one-item-per-photo invariant holds by schema.
type QueueItem struct {
	ID             uuid.UUID             `json:"id"`
	PhotoID        uuid.UUID             `json:"photo_id"`
	Status         constants.QueueStatus `json:"status"`
	Priority       int                   `json:"priority"`
	Attempts       int                   `json:"attempts"`
	MaxAttempts    int                   `json:"max_attempts"`
	LastError      *string               `json:"last_error,omitempty"`
	NextAttemptAt  time.Time             `json:"next_attempt_at"`
	LeaseExpiresAt *time.Time            `json:"lease_expires_at,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	StartedAt      *time.Time            `json:"started_at,omitempty"`
	CompletedAt    *time.Time            `json:"completed_at,omitempty"`
}

// QueueCounts is the per-status snapshot returned by GetQueueStatus.
type QueueCounts struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	InFlight   int `json:"in_flight"`
}
