// Queries for the sync queue: locally recorded interaction facts waiting
// to be uploaded to the remote service.

package store

import (
	"time"

	"github.com/satchel-app/satchel-go/internal/models"
)

// EnqueueItem persists a sync queue item. The derived id makes this
// idempotent: enqueueing the same session twice stores a single row.
func (s *Store) EnqueueItem(item *models.SyncQueueItem) error {
	_, err := s.db.Exec(`
        INSERT OR IGNORE INTO sync_queue
        (id, type, content_id, session_id, duration_seconds, retry_count, status, next_retry_at, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
    `, item.ID, item.Type, item.ContentID, item.SessionID, item.DurationSeconds,
		item.RetryCount, item.Status, item.NextRetryAt, item.CreatedAt)
	return err
}

// ListQueueItems returns every queue item in enqueue order.
func (s *Store) ListQueueItems() ([]*models.SyncQueueItem, error) {
	return s.queryQueueItems(`
        SELECT id, type, content_id, session_id, duration_seconds, retry_count, status, next_retry_at, created_at
        FROM sync_queue ORDER BY created_at ASC, id ASC
    `)
}

// ListPendingQueueItems returns up to limit pending items whose retry time
// has arrived, in enqueue order.
func (s *Store) ListPendingQueueItems(limit int, now time.Time) ([]*models.SyncQueueItem, error) {
	return s.queryQueueItems(`
        SELECT id, type, content_id, session_id, duration_seconds, retry_count, status, next_retry_at, created_at
        FROM sync_queue
        WHERE status = ? AND next_retry_at <= ?
        ORDER BY created_at ASC, id ASC LIMIT ?
    `, models.QueueStatusPending, now, limit)
}

func (s *Store) queryQueueItems(query string, args ...interface{}) ([]*models.SyncQueueItem, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*models.SyncQueueItem
	for rows.Next() {
		var item models.SyncQueueItem
		if err := rows.Scan(&item.ID, &item.Type, &item.ContentID, &item.SessionID,
			&item.DurationSeconds, &item.RetryCount, &item.Status, &item.NextRetryAt, &item.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &item)
	}
	return items, rows.Err()
}

// DeleteQueueItem removes an item after a successful upload.
func (s *Store) DeleteQueueItem(id string) error {
	_, err := s.db.Exec("DELETE FROM sync_queue WHERE id = ?", id)
	return err
}

// BumpQueueItemRetry increments the retry counter and schedules the next
// attempt. Once the counter reaches maxAttempts the item moves to the dead
// status and is no longer picked up by ListPendingQueueItems.
func (s *Store) BumpQueueItemRetry(id string, nextRetryAt time.Time, maxAttempts int) error {
	_, err := s.db.Exec(`
        UPDATE sync_queue SET
            retry_count = retry_count + 1,
            next_retry_at = ?,
            status = CASE WHEN retry_count + 1 >= ? THEN ? ELSE status END
        WHERE id = ?
    `, nextRetryAt, maxAttempts, models.QueueStatusDead, id)
	return err
}

// CountPendingQueueItems returns the number of items still awaiting upload.
func (s *Store) CountPendingQueueItems() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM sync_queue WHERE status = ?", models.QueueStatusPending).Scan(&count)
	return count, err
}
