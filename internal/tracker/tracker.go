// Tracks viewing sessions while the app is offline. A session starts when
// the user opens a piece of downloaded content and ends when they leave;
// sessions long enough to matter become sync queue items.

package tracker

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/satchel-app/satchel-go/internal/models"
)

// DefaultMinSessionDuration filters out accidental opens.
const DefaultMinSessionDuration = 10 * time.Second

// QueueSink receives completed sessions. The sync coordinator implements it.
type QueueSink interface {
	AddToSyncQueue(contentID, sessionID string, durationSeconds int64) (*models.SyncQueueItem, error)
}

// Session is one in-progress viewing of a piece of content.
type Session struct {
	ID        string
	ContentID string
	StartedAt time.Time
}

// Tracker records one active session per content id.
type Tracker struct {
	sink       QueueSink
	minSession time.Duration
	now        func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// New creates a tracker that feeds completed sessions into sink. A
// non-positive minSession falls back to the default threshold.
func New(sink QueueSink, minSession time.Duration) *Tracker {
	if minSession <= 0 {
		minSession = DefaultMinSessionDuration
	}
	return &Tracker{
		sink:       sink,
		minSession: minSession,
		now:        time.Now,
		sessions:   make(map[string]*Session),
	}
}

// sessionID derives the stable id for a session from its content and start
// time. The same session always maps to the same id, which is what makes
// enqueueing idempotent downstream.
func sessionID(contentID string, startedAt time.Time) string {
	return fmt.Sprintf("offline_%s_%d", contentID, startedAt.UnixMilli())
}

// Begin starts a session for contentID. Beginning content that already has
// an active session restarts it; the earlier partial session is discarded.
func (t *Tracker) Begin(contentID string) *Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.sessions[contentID]; ok {
		log.Printf("Restarting session for %s, discarding %s", contentID, old.ID)
	}
	now := t.now()
	session := &Session{
		ID:        sessionID(contentID, now),
		ContentID: contentID,
		StartedAt: now,
	}
	t.sessions[contentID] = session
	return session
}

// End closes the active session for contentID. Sessions shorter than the
// minimum are dropped; longer ones are handed to the sink and the resulting
// queue item is returned. Ending content with no active session returns
// (nil, nil).
func (t *Tracker) End(contentID string) (*models.SyncQueueItem, error) {
	t.mu.Lock()
	session, ok := t.sessions[contentID]
	if ok {
		delete(t.sessions, contentID)
	}
	t.mu.Unlock()
	if !ok {
		return nil, nil
	}

	elapsed := t.now().Sub(session.StartedAt)
	if elapsed < t.minSession {
		log.Printf("Dropping short session %s (%.1fs)", session.ID, elapsed.Seconds())
		return nil, nil
	}

	return t.sink.AddToSyncQueue(session.ContentID, session.ID, int64(elapsed.Seconds()))
}

// Active returns the in-progress session for contentID, if any.
func (t *Tracker) Active(contentID string) (*Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[contentID]
	return s, ok
}

// EndAll closes every active session, e.g. on shutdown.
func (t *Tracker) EndAll() {
	t.mu.Lock()
	ids := make([]string, 0, len(t.sessions))
	for id := range t.sessions {
		ids = append(ids, id)
	}
	t.mu.Unlock()

	for _, id := range ids {
		if _, err := t.End(id); err != nil {
			log.Printf("Failed to record session for %s on shutdown: %v", id, err)
		}
	}
}
