// This file defines the core data structures (models) for our application.
// These structs represent the offline manifest, the cached content packages,
// and the derived storage statistics.

package models

import (
	"encoding/json"
	"time"
)

// ManifestVersion is the schema version written into every Manifest value.
const ManifestVersion = 1

// Manifest is the index of all content currently cached offline. It maps a
// content id to the metadata recorded at download time.
type Manifest struct {
	Version    int                        `json:"version"`
	Downloaded map[string]*DownloadedMeta `json:"downloaded"`
}

// DownloadedMeta describes one downloaded content package without requiring
// the full package payload to be loaded. Title and subject are denormalized
// so listings work off the manifest alone.
type DownloadedMeta struct {
	Version      int64     `json:"version"`
	DownloadedAt time.Time `json:"downloaded_at"`
	Title        string    `json:"title"`
	Subject      string    `json:"subject"`
	SizeInBytes  int64     `json:"size_in_bytes"`
}

// ContentPackage is the complete offline bundle for one piece of content.
// It is fetched whole, stored whole, and replaced whole on re-download.
type ContentPackage struct {
	ContentID string      `json:"content_id"`
	Version   int64       `json:"version"`
	Content   ContentBody `json:"content"`
}

// ContentBody is the displayable part of a package. Tags are ordered; the
// first tag is treated as the subject for grouping.
type ContentBody struct {
	Title string          `json:"title"`
	Tags  []string        `json:"tags"`
	Body  json.RawMessage `json:"body,omitempty"`
}

// Subject returns the grouping subject for the package, which is the first
// tag by convention, or an empty string when the package is untagged.
func (p *ContentPackage) Subject() string {
	if len(p.Content.Tags) == 0 {
		return ""
	}
	return p.Content.Tags[0]
}

// OfflineStats is derived state, never persisted as a whole.
type OfflineStats struct {
	StorageUsed     int64      `json:"storage_used"`
	TotalDownloaded int        `json:"total_downloaded"`
	StorageLimit    int64      `json:"storage_limit"`
	PendingUploads  int        `json:"pending_uploads"`
	LastSyncTime    *time.Time `json:"last_sync_time,omitempty"`
}
