// The sync coordinator: connectivity-aware orchestration between the UI,
// the local store, and the remote content API. One Coordinator is
// constructed per process and passed to its consumers explicitly.

package offline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/satchel-app/satchel-go/internal/models"
	"github.com/satchel-app/satchel-go/internal/remote"
	"github.com/satchel-app/satchel-go/internal/store"
	"github.com/satchel-app/satchel-go/internal/websocket"
)

const (
	flushBatchSize   = 50
	baseRetryBackoff = time.Minute
	maxRetryBackoff  = time.Hour
)

// ContentAPI is the slice of the remote client the coordinator needs.
// *remote.Client implements it; tests substitute fakes.
type ContentAPI interface {
	FetchPackage(ctx context.Context, contentID string) (*models.ContentPackage, error)
	CheckVersions(ctx context.Context, versions map[string]int64) ([]string, error)
	SubmitInteraction(ctx context.Context, item *models.SyncQueueItem) error
	Ping(ctx context.Context) error
}

// Options tune coordinator behavior.
type Options struct {
	StorageLimitBytes int64
	MaxUploadAttempts int
}

// Coordinator orchestrates downloads, update checks, and queue flushing.
type Coordinator struct {
	st     *store.Store
	client ContentAPI
	hub    *websocket.Hub // nil disables progress broadcasts
	opts   Options

	mu          sync.Mutex
	online      bool
	isSyncing   bool
	isFlushing  bool
	updateAvail map[string]bool
	manifest    *models.Manifest
	queue       []*models.SyncQueueItem
	lastSync    *time.Time

	lockMu        sync.Mutex
	downloadLocks map[string]*sync.Mutex
}

// New creates a Coordinator and loads its in-memory mirrors from the store.
func New(st *store.Store, client ContentAPI, hub *websocket.Hub, opts Options) (*Coordinator, error) {
	if opts.MaxUploadAttempts <= 0 {
		opts.MaxUploadAttempts = 5
	}
	c := &Coordinator{
		st:            st,
		client:        client,
		hub:           hub,
		opts:          opts,
		online:        true,
		updateAvail:   make(map[string]bool),
		downloadLocks: make(map[string]*sync.Mutex),
	}
	if err := c.Refresh(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return c, nil
}

// Refresh reconciles the in-memory mirrors with the persisted store. Most
// mutations update the mirrors optimistically; consumers needing strict
// consistency call this first.
func (c *Coordinator) Refresh() error {
	manifest, err := c.st.GetManifest()
	if err != nil {
		return err
	}
	queue, err := c.st.ListQueueItems()
	if err != nil {
		return err
	}
	lastSync, err := c.st.GetLastSyncTime()
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.manifest = manifest
	c.queue = queue
	c.lastSync = lastSync
	c.mu.Unlock()
	return nil
}

// IsOnline reports the current connectivity belief.
func (c *Coordinator) IsOnline() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

// SetOnline overrides the connectivity flag, e.g. from a UI toggle.
func (c *Coordinator) SetOnline(online bool) {
	c.mu.Lock()
	c.online = online
	c.mu.Unlock()
}

// ProbeConnectivity pings the remote service and updates the flag.
func (c *Coordinator) ProbeConnectivity(ctx context.Context) bool {
	err := c.client.Ping(ctx)
	c.SetOnline(err == nil)
	if err != nil {
		log.Printf("Connectivity probe failed: %v", err)
	}
	return err == nil
}

// noteRequestOutcome folds a remote call result into the connectivity flag.
// A response from the server, even a rejection, proves we are online; only
// transport errors flip the flag to offline.
func (c *Coordinator) noteRequestOutcome(err error) {
	var statusErr *remote.StatusError
	if err == nil || errors.As(err, &statusErr) {
		c.SetOnline(true)
		return
	}
	c.SetOnline(false)
}

func (c *Coordinator) lockFor(contentID string) *sync.Mutex {
	c.lockMu.Lock()
	defer c.lockMu.Unlock()
	l, ok := c.downloadLocks[contentID]
	if !ok {
		l = &sync.Mutex{}
		c.downloadLocks[contentID] = l
	}
	return l
}

// DownloadContent fetches one content package from the remote API and
// persists it together with its manifest entry. Overlapping downloads of
// the same id are serialized by a per-id lock, so size bookkeeping can
// never interleave.
func (c *Coordinator) DownloadContent(ctx context.Context, contentID string) error {
	if !c.IsOnline() {
		return ErrOffline
	}

	lock := c.lockFor(contentID)
	lock.Lock()
	defer lock.Unlock()

	c.sendProgress(contentID, 0, "downloading", "Starting download...", false)
	stop := make(chan struct{})
	go c.simulateProgress(contentID, stop)

	pkg, err := c.client.FetchPackage(ctx, contentID)
	close(stop)
	c.noteRequestOutcome(err)
	if err != nil {
		c.sendProgress(contentID, 0, "failed", fmt.Sprintf("Download failed: %v", err), true)
		var statusErr *remote.StatusError
		if errors.As(err, &statusErr) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrOffline, err)
	}

	size, err := c.st.SavePackage(pkg)
	if err != nil {
		c.sendProgress(contentID, 0, "failed", "Failed to store package", true)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	// Mirror updates: the fresh download supersedes any update flag.
	c.mu.Lock()
	c.updateAvail[contentID] = false
	if c.manifest != nil {
		c.manifest.Downloaded[contentID] = &models.DownloadedMeta{
			Version:      pkg.Version,
			DownloadedAt: time.Now(),
			Title:        pkg.Content.Title,
			Subject:      pkg.Subject(),
			SizeInBytes:  size,
		}
	}
	c.mu.Unlock()

	c.sendProgress(contentID, 100, "stored", "Download complete.", true)
	return nil
}

// simulateProgress emits synthetic progress while a fetch is in flight.
// It climbs to 90% on a timer; the commit path jumps to 100%. This is a
// UX affordance, not a measure of bytes transferred.
func (c *Coordinator) simulateProgress(contentID string, stop <-chan struct{}) {
	if c.hub == nil {
		return
	}
	progress := 0.0
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if progress < 90 {
				progress += 10
				c.sendProgress(contentID, progress, "downloading", "Downloading...", false)
			}
		}
	}
}

func (c *Coordinator) sendProgress(contentID string, progress float64, status, message string, done bool) {
	if c.hub == nil {
		return
	}
	c.hub.BroadcastJSON(models.ProgressUpdate{
		JobID:     "offline-download",
		Message:   message,
		Progress:  progress,
		ContentID: contentID,
		Status:    status,
		Done:      done,
	})
}

// RemoveContent deletes the package and its manifest entry together.
func (c *Coordinator) RemoveContent(contentID string) error {
	if err := c.st.DeletePackage(contentID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	c.mu.Lock()
	if c.manifest != nil {
		delete(c.manifest.Downloaded, contentID)
	}
	delete(c.updateAvail, contentID)
	c.mu.Unlock()
	return nil
}

// GetContent is a read-through to the local store.
func (c *Coordinator) GetContent(contentID string) (*models.ContentPackage, error) {
	pkg, err := c.st.GetPackage(contentID)
	if err == store.ErrNotFound {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return pkg, nil
}

// Manifest returns the current manifest mirror.
func (c *Coordinator) Manifest() *models.Manifest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.manifest
}

// CheckForUpdates sends every locally held version to the remote API and
// rebuilds the update-availability map. Every downloaded id appears in the
// result with an explicit boolean; a failed check leaves the previous map
// untouched as last-known-good.
func (c *Coordinator) CheckForUpdates(ctx context.Context) (map[string]bool, error) {
	if !c.IsOnline() {
		return nil, ErrOffline
	}

	manifest, err := c.st.GetManifest()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(manifest.Downloaded) == 0 {
		return map[string]bool{}, nil
	}

	versions := make(map[string]int64, len(manifest.Downloaded))
	for id, meta := range manifest.Downloaded {
		versions[id] = meta.Version
	}

	needed, err := c.client.CheckVersions(ctx, versions)
	c.noteRequestOutcome(err)
	if err != nil {
		log.Printf("Update check failed, keeping previous flags: %v", err)
		var statusErr *remote.StatusError
		if errors.As(err, &statusErr) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrOffline, err)
	}

	neededSet := make(map[string]bool, len(needed))
	for _, id := range needed {
		neededSet[id] = true
	}
	fresh := make(map[string]bool, len(manifest.Downloaded))
	for id := range manifest.Downloaded {
		fresh[id] = neededSet[id]
	}

	c.mu.Lock()
	c.updateAvail = fresh
	c.mu.Unlock()
	return c.UpdateAvailability(), nil
}

// UpdateAvailability returns a copy of the current update-available map.
func (c *Coordinator) UpdateAvailability() map[string]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]bool, len(c.updateAvail))
	for id, avail := range c.updateAvail {
		out[id] = avail
	}
	return out
}

// AddToSyncQueue builds and persists an interaction record. Enqueueing the
// same session twice stores a single item; the in-memory queue mirror is
// appended optimistically without a re-read.
func (c *Coordinator) AddToSyncQueue(contentID, sessionID string, durationSeconds int64) (*models.SyncQueueItem, error) {
	item := models.NewInteractionItem(contentID, sessionID, durationSeconds, time.Now())
	if err := c.st.EnqueueItem(item); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	c.mu.Lock()
	exists := false
	for _, queued := range c.queue {
		if queued.ID == item.ID {
			exists = true
			break
		}
	}
	if !exists {
		c.queue = append(c.queue, item)
	}
	c.mu.Unlock()
	return item, nil
}

// QueueItems returns the current queue mirror.
func (c *Coordinator) QueueItems() []*models.SyncQueueItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*models.SyncQueueItem, len(c.queue))
	copy(out, c.queue)
	return out
}

// RefreshDownloads re-downloads every package in the manifest, one at a
// time, to pull in server-side changes. A second call while one is running
// returns ErrSyncInProgress. An empty manifest completes immediately
// without touching the last-sync timestamp.
func (c *Coordinator) RefreshDownloads(ctx context.Context) error {
	if !c.IsOnline() {
		return ErrOffline
	}

	c.mu.Lock()
	if c.isSyncing {
		c.mu.Unlock()
		return ErrSyncInProgress
	}
	c.isSyncing = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.isSyncing = false
		c.mu.Unlock()
	}()

	manifest, err := c.st.GetManifest()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(manifest.Downloaded) == 0 {
		return nil
	}

	ids := make([]string, 0, len(manifest.Downloaded))
	for id := range manifest.Downloaded {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	// Sequential on purpose: one download at a time bounds network and
	// storage load, and two transactional writes never interleave.
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.DownloadContent(ctx, id); err != nil {
			log.Printf("Refresh of %s failed: %v", id, err)
		}
	}

	now := time.Now()
	if err := c.st.SetLastSyncTime(now); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	c.mu.Lock()
	c.lastSync = &now
	c.mu.Unlock()
	return nil
}

// FlushQueue uploads pending interaction records to the remote service.
// Uploaded items are deleted; failed items get their retry counter bumped
// with exponential backoff and move to a dead-letter status after the
// configured number of attempts. Returns the number of items uploaded.
func (c *Coordinator) FlushQueue(ctx context.Context) (int, error) {
	if !c.IsOnline() {
		return 0, ErrOffline
	}

	c.mu.Lock()
	if c.isFlushing {
		c.mu.Unlock()
		return 0, ErrSyncInProgress
	}
	c.isFlushing = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.isFlushing = false
		c.mu.Unlock()
	}()

	uploaded := 0
	for {
		if err := ctx.Err(); err != nil {
			return uploaded, err
		}
		items, err := c.st.ListPendingQueueItems(flushBatchSize, time.Now())
		if err != nil {
			return uploaded, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if len(items) == 0 {
			break
		}

		progressed := false
		for _, item := range items {
			err := c.client.SubmitInteraction(ctx, item)
			c.noteRequestOutcome(err)
			if err == nil {
				if err := c.st.DeleteQueueItem(item.ID); err != nil {
					return uploaded, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
				}
				uploaded++
				progressed = true
				continue
			}

			var statusErr *remote.StatusError
			if errors.As(err, &statusErr) {
				// The server saw the item and rejected it; retry later,
				// and give up for good after the attempt budget.
				backoff := retryBackoff(item.RetryCount)
				if bumpErr := c.st.BumpQueueItemRetry(item.ID, time.Now().Add(backoff), c.opts.MaxUploadAttempts); bumpErr != nil {
					return uploaded, fmt.Errorf("%w: %v", ErrStoreUnavailable, bumpErr)
				}
				log.Printf("Upload of %s rejected (status %d), retry %d scheduled", item.ID, statusErr.Status, item.RetryCount+1)
				continue
			}

			// Transport failure: we just went offline, stop flushing.
			return uploaded, fmt.Errorf("%w: %v", ErrOffline, err)
		}
		if !progressed {
			// Everything left in this batch is backing off; avoid a hot loop.
			break
		}
	}

	// Reconcile the queue mirror with what actually remains.
	queue, err := c.st.ListQueueItems()
	if err == nil {
		c.mu.Lock()
		c.queue = queue
		c.mu.Unlock()
	}
	return uploaded, nil
}

func retryBackoff(retryCount int) time.Duration {
	backoff := baseRetryBackoff << uint(retryCount)
	if backoff > maxRetryBackoff || backoff <= 0 {
		return maxRetryBackoff
	}
	return backoff
}

// Stats derives the current storage and sync statistics.
func (c *Coordinator) Stats() (*models.OfflineStats, error) {
	used, err := c.st.StorageUsed()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	count, err := c.st.CountDownloaded()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	pending, err := c.st.CountPendingQueueItems()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	c.mu.Lock()
	lastSync := c.lastSync
	c.mu.Unlock()

	return &models.OfflineStats{
		StorageUsed:     used,
		TotalDownloaded: count,
		StorageLimit:    c.opts.StorageLimitBytes,
		PendingUploads:  pending,
		LastSyncTime:    lastSync,
	}, nil
}
