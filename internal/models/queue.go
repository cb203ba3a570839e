package models

import (
	"fmt"
	"time"
)

// Queue item types. Only interactions are recorded today, but the id scheme
// keeps room for other record types.
const QueueItemTypeInteraction = "interaction"

// Sync queue item statuses.
const (
	QueueStatusPending = "pending"
	QueueStatusDead    = "dead"
)

// SyncQueueItem is one pending fact awaiting upload to the remote service.
type SyncQueueItem struct {
	ID              string    `json:"id"` // "{type}_{session_id}", deduplicates re-enqueues
	Type            string    `json:"type"`
	ContentID       string    `json:"content_id"`
	SessionID       string    `json:"session_id"`
	DurationSeconds int64     `json:"duration_seconds"`
	RetryCount      int       `json:"retry_count"`
	Status          string    `json:"status"`
	NextRetryAt     time.Time `json:"next_retry_at"`
	CreatedAt       time.Time `json:"created_at"`
}

// QueueItemID derives the stable queue id for a record type and session.
func QueueItemID(itemType, sessionID string) string {
	return fmt.Sprintf("%s_%s", itemType, sessionID)
}

// NewInteractionItem builds a pending interaction record for a finished
// viewing session.
func NewInteractionItem(contentID, sessionID string, durationSeconds int64, now time.Time) *SyncQueueItem {
	return &SyncQueueItem{
		ID:              QueueItemID(QueueItemTypeInteraction, sessionID),
		Type:            QueueItemTypeInteraction,
		ContentID:       contentID,
		SessionID:       sessionID,
		DurationSeconds: durationSeconds,
		Status:          QueueStatusPending,
		NextRetryAt:     now,
		CreatedAt:       now,
	}
}
