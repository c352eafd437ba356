package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/photosmith/photosmith/constants"
	"github.com/photosmith/photosmith/internal/common"
	"github.com/photosmith/photosmith/internal/entity"
)

// ClaimParams bounds one claim call.
type ClaimParams struct {
	BatchSize int
	Lease     time.Duration
	// MinPriority, when set, restricts the claim to items at or above
	// the given priority.
	MinPriority *int
}

// QueueRepository owns the processing_queue state machine. Claim is the
// only concurrency-critical operation: it must never hand the same item
// to two callers, across goroutines or processes.
type QueueRepository interface {
	// Enqueue tracks the photo for processing. Returns accepted=false,
	// along with the row's current status, when the photo is already
	// PENDING or PROCESSING. A COMPLETED or FAILED row is reset to
	// PENDING; attempts are deliberately kept, bounding total retries
	// across the item's lifetime.
	Enqueue(ctx context.Context, photoID uuid.UUID, priority, maxAttempts int) (bool, constants.QueueStatus, error)

	// Claim atomically moves up to BatchSize eligible items to
	// PROCESSING and returns them. Eligible: PENDING past its backoff
	// time, or PROCESSING with an expired lease (abandoned by a dead
	// worker). Ordered by priority DESC, created_at ASC. Claiming an
	// item increments its attempts counter.
	Claim(ctx context.Context, p ClaimParams) ([]*entity.QueueItem, error)

	// Heartbeat extends the lease of an in-flight item.
	Heartbeat(ctx context.Context, itemID uuid.UUID, lease time.Duration) error

	MarkCompleted(ctx context.Context, itemID uuid.UUID) error
	MarkFailed(ctx context.Context, itemID uuid.UUID, lastError string) error

	// ReturnToPending puts a claimed item back with a backoff delay
	// after a transient failure. The attempt stays counted.
	ReturnToPending(ctx context.Context, itemID uuid.UUID, lastError string, delay time.Duration) error

	// RevertInFlight returns every PROCESSING item to PENDING and
	// refunds the unfinished attempt. Used by batch cancellation.
	RevertInFlight(ctx context.Context) (int, error)

	CountsByStatus(ctx context.Context) (entity.QueueCounts, error)
}

type queueRepo struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewQueueRepository(pool *pgxpool.Pool, log *slog.Logger) QueueRepository {
	if log == nil {
		log = slog.Default()
	}
	return &queueRepo{pool: pool, log: log}
}

func (r *queueRepo) Enqueue(ctx context.Context, photoID uuid.UUID, priority, maxAttempts int) (bool, constants.QueueStatus, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO processing_queue (id, photo_id, status, priority, max_attempts)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (photo_id) DO UPDATE SET
			status           = $3,
			priority         = GREATEST(processing_queue.priority, EXCLUDED.priority),
			max_attempts     = EXCLUDED.max_attempts,
			last_error       = NULL,
			next_attempt_at  = now(),
			lease_expires_at = NULL,
			started_at       = NULL,
			completed_at     = NULL
		WHERE processing_queue.status IN ($6, $7)
	`, uuid.New(), photoID, constants.QueueStatusPending, priority, maxAttempts,
		constants.QueueStatusCompleted, constants.QueueStatusFailed)
	if err != nil {
		r.log.Error("queue enqueue failed", "photo_id", photoID, "err", err)
		return false, "", common.NewProcessingError(common.KindStorage, "enqueue", err)
	}
	if tag.RowsAffected() == 0 {
		// Already PENDING or PROCESSING. Raise the priority of a waiting
		// item if the new request outranks it, report not-accepted with
		// the status the row actually has.
		var status constants.QueueStatus
		err = r.pool.QueryRow(ctx, `
			UPDATE processing_queue SET priority = GREATEST(
				priority, CASE WHEN status = $3 THEN $2 ELSE priority END)
			WHERE photo_id = $1
			RETURNING status
		`, photoID, priority, constants.QueueStatusPending).Scan(&status)
		if err != nil {
			return false, "", common.NewProcessingError(common.KindStorage, "bump priority", err)
		}
		r.log.Info("queue enqueue skipped, already queued", "photo_id", photoID, "status", status)
		return false, status, nil
	}
	r.log.Info("queue item enqueued", "photo_id", photoID, "priority", priority)
	return true, constants.QueueStatusPending, nil
}

const claimColumns = `q.id, q.photo_id, q.status, q.priority, q.attempts, q.max_attempts,
	q.last_error, q.next_attempt_at, q.lease_expires_at, q.created_at, q.started_at, q.completed_at`

func (r *queueRepo) Claim(ctx context.Context, p ClaimParams) ([]*entity.QueueItem, error) {
	minPriority := -1 << 31
	if p.MinPriority != nil {
		minPriority = *p.MinPriority
	}
	rows, err := r.pool.Query(ctx, `
		WITH picked AS (
			SELECT id FROM processing_queue
			WHERE priority >= $3
			  AND (
			      (status = $4 AND next_attempt_at <= now())
			      OR (status = $5 AND lease_expires_at IS NOT NULL AND lease_expires_at < now())
			  )
			ORDER BY priority DESC, created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE processing_queue q SET
			status           = $5,
			attempts         = q.attempts + 1,
			started_at       = now(),
			lease_expires_at = now() + make_interval(secs => $2)
		FROM picked
		WHERE q.id = picked.id
		RETURNING `+claimColumns,
		p.BatchSize, p.Lease.Seconds(), minPriority,
		constants.QueueStatusPending, constants.QueueStatusProcessing)
	if err != nil {
		r.log.Error("queue claim failed", "err", err)
		return nil, common.NewProcessingError(common.KindStorage, "claim", err)
	}
	defer rows.Close()

	var items []*entity.QueueItem
	for rows.Next() {
		var it entity.QueueItem
		if err := rows.Scan(&it.ID, &it.PhotoID, &it.Status, &it.Priority, &it.Attempts,
			&it.MaxAttempts, &it.LastError, &it.NextAttemptAt, &it.LeaseExpiresAt,
			&it.CreatedAt, &it.StartedAt, &it.CompletedAt); err != nil {
			return nil, common.NewProcessingError(common.KindStorage, "scan claimed item", err)
		}
		items = append(items, &it)
	}
	if err := rows.Err(); err != nil {
		return nil, common.NewProcessingError(common.KindStorage, "claim rows", err)
	}
	if len(items) > 0 {
		r.log.Info("queue items claimed", "count", len(items))
	}
	return items, nil
}

func (r *queueRepo) Heartbeat(ctx context.Context, itemID uuid.UUID, lease time.Duration) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE processing_queue
		SET lease_expires_at = now() + make_interval(secs => $2)
		WHERE id = $1 AND status = $3
	`, itemID, lease.Seconds(), constants.QueueStatusProcessing)
	if err != nil {
		return common.NewProcessingError(common.KindStorage, "heartbeat", err)
	}
	return nil
}

// Terminal updates are fenced on the live lease. A worker whose lease
// expired may have had its item reclaimed; its late write must not
// overwrite the reclaimer's state. The dropped write is safe because
// the metadata upsert is idempotent.
func (r *queueRepo) MarkCompleted(ctx context.Context, itemID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE processing_queue SET
			status           = $2,
			last_error       = NULL,
			lease_expires_at = NULL,
			completed_at     = now()
		WHERE id = $1 AND status = $3 AND lease_expires_at > now()
	`, itemID, constants.QueueStatusCompleted, constants.QueueStatusProcessing)
	if err != nil {
		r.log.Error("queue mark completed failed", "item_id", itemID, "err", err)
		return common.NewProcessingError(common.KindStorage, "mark completed", err)
	}
	if tag.RowsAffected() == 0 {
		r.log.Warn("queue completion dropped, item reclaimed after lease expiry", "item_id", itemID)
		return nil
	}
	r.log.Info("queue item completed", "item_id", itemID)
	return nil
}

func (r *queueRepo) MarkFailed(ctx context.Context, itemID uuid.UUID, lastError string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE processing_queue SET
			status           = $2,
			last_error       = $3,
			lease_expires_at = NULL,
			completed_at     = now()
		WHERE id = $1 AND status = $4 AND lease_expires_at > now()
	`, itemID, constants.QueueStatusFailed, lastError, constants.QueueStatusProcessing)
	if err != nil {
		r.log.Error("queue mark failed failed", "item_id", itemID, "err", err)
		return common.NewProcessingError(common.KindStorage, "mark failed", err)
	}
	if tag.RowsAffected() == 0 {
		r.log.Warn("queue failure dropped, item reclaimed after lease expiry", "item_id", itemID)
		return nil
	}
	r.log.Warn("queue item failed", "item_id", itemID, "error", lastError)
	return nil
}

func (r *queueRepo) ReturnToPending(ctx context.Context, itemID uuid.UUID, lastError string, delay time.Duration) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE processing_queue SET
			status           = $2,
			last_error       = $3,
			lease_expires_at = NULL,
			next_attempt_at  = now() + make_interval(secs => $4)
		WHERE id = $1 AND status = $5 AND lease_expires_at > now()
	`, itemID, constants.QueueStatusPending, lastError, delay.Seconds(),
		constants.QueueStatusProcessing)
	if err != nil {
		r.log.Error("queue return to pending failed", "item_id", itemID, "err", err)
		return common.NewProcessingError(common.KindStorage, "return to pending", err)
	}
	if tag.RowsAffected() == 0 {
		r.log.Warn("queue retry dropped, item reclaimed after lease expiry", "item_id", itemID)
		return nil
	}
	r.log.Info("queue item returned to pending", "item_id", itemID, "delay", delay)
	return nil
}

func (r *queueRepo) RevertInFlight(ctx context.Context) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE processing_queue SET
			status           = $1,
			attempts         = GREATEST(attempts - 1, 0),
			lease_expires_at = NULL,
			next_attempt_at  = now()
		WHERE status = $2
	`, constants.QueueStatusPending, constants.QueueStatusProcessing)
	if err != nil {
		return 0, common.NewProcessingError(common.KindStorage, "revert in-flight", err)
	}
	n := int(tag.RowsAffected())
	if n > 0 {
		r.log.Info("in-flight queue items reverted", "count", n)
	}
	return n, nil
}

func (r *queueRepo) CountsByStatus(ctx context.Context) (entity.QueueCounts, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT status, COUNT(*) FROM processing_queue GROUP BY status
	`)
	if err != nil {
		return entity.QueueCounts{}, common.NewProcessingError(common.KindStorage, "counts by status", err)
	}
	defer rows.Close()

	var counts entity.QueueCounts
	for rows.Next() {
		var status constants.QueueStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return entity.QueueCounts{}, common.NewProcessingError(common.KindStorage, "scan count", err)
		}
		switch status {
		case constants.QueueStatusPending:
			counts.Pending = n
		case constants.QueueStatusProcessing:
			counts.Processing = n
		case constants.QueueStatusCompleted:
			counts.Completed = n
		case constants.QueueStatusFailed:
			counts.Failed = n
		}
	}
	return counts, rows.Err()
}
