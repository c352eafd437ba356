package constants

// QueueStatus is the canonical status for rows in processing_queue.
type QueueStatus string

// Stable values (store these exact strings in DB).
const (
	QueueStatusPending    QueueStatus = "PENDING"    // eligible for claim
	QueueStatusProcessing QueueStatus = "PROCESSING" // claimed by a worker, lease held
	QueueStatusCompleted  QueueStatus = "COMPLETED"  // terminal until explicit re-enqueue
	QueueStatusFailed     QueueStatus = "FAILED"     // terminal until explicit re-enqueue
)

// IsTerminal reports whether a status can only leave via explicit re-enqueue.
func (s QueueStatus) IsTerminal() bool {
	return s == QueueStatusCompleted || s == QueueStatusFailed
}

// QueueStatuses lists every status in display order.
var QueueStatuses = []QueueStatus{
	QueueStatusPending,
	QueueStatusProcessing,
	QueueStatusCompleted,
	QueueStatusFailed,
}
