// Typed error kinds for offline operations. Callers (the API layer, the
// CLI) branch on these to report accurate failures instead of silently
// doing nothing.

package offline

import "errors"

var (
	// ErrOffline means the remote service is not reachable right now.
	ErrOffline = errors.New("offline: remote service unreachable")

	// ErrNotFound means the requested content id has not been downloaded.
	ErrNotFound = errors.New("content not downloaded")

	// ErrSyncInProgress means a full refresh is already running; the new
	// request was not started.
	ErrSyncInProgress = errors.New("a sync is already in progress")

	// ErrStoreUnavailable means the local store rejected a read or write.
	ErrStoreUnavailable = errors.New("local store unavailable")
)
