// To handle all database interactions. This is our
// data access layer, keeping SQL queries separate from business logic.

package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/satchel-app/satchel-go/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store provides all functions to interact with the database.
type Store struct {
	db *sql.DB
}

// New creates a new Store instance.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// SavePackage persists a content package and its manifest entry in a single
// transaction: either both land or neither does, so the manifest never
// references a missing package. Re-saving an existing id replaces both rows.
// It returns the serialized size of the stored payload.
func (s *Store) SavePackage(pkg *models.ContentPackage) (int64, error) {
	payload, err := json.Marshal(pkg)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize package %s: %w", pkg.ContentID, err)
	}
	size := int64(len(payload))

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
        INSERT INTO packages (content_id, version, payload, size_bytes)
        VALUES (?, ?, ?, ?)
        ON CONFLICT(content_id) DO UPDATE SET
            version = excluded.version,
            payload = excluded.payload,
            size_bytes = excluded.size_bytes;
    `, pkg.ContentID, pkg.Version, payload, size)
	if err != nil {
		return 0, err
	}

	_, err = tx.Exec(`
        INSERT INTO manifest (content_id, version, title, subject, size_bytes, downloaded_at)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT(content_id) DO UPDATE SET
            version = excluded.version,
            title = excluded.title,
            subject = excluded.subject,
            size_bytes = excluded.size_bytes,
            downloaded_at = excluded.downloaded_at;
    `, pkg.ContentID, pkg.Version, pkg.Content.Title, pkg.Subject(), size, time.Now())
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return size, nil
}

// GetPackage retrieves the full offline bundle for one content id.
func (s *Store) GetPackage(contentID string) (*models.ContentPackage, error) {
	var payload []byte
	err := s.db.QueryRow("SELECT payload FROM packages WHERE content_id = ?", contentID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}

	var pkg models.ContentPackage
	if err := json.Unmarshal(payload, &pkg); err != nil {
		return nil, fmt.Errorf("corrupt package payload for %s: %w", contentID, err)
	}
	return &pkg, nil
}

// DeletePackage removes the package and its manifest entry together.
// Deleting an id that was never downloaded is not an error.
func (s *Store) DeletePackage(contentID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM packages WHERE content_id = ?", contentID); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM manifest WHERE content_id = ?", contentID); err != nil {
		return err
	}
	return tx.Commit()
}

// GetManifest assembles the manifest value from its rows. A store with no
// downloads yields a manifest with an empty (non-nil) Downloaded map.
func (s *Store) GetManifest() (*models.Manifest, error) {
	rows, err := s.db.Query(`
        SELECT content_id, version, title, subject, size_bytes, downloaded_at
        FROM manifest ORDER BY content_id
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	manifest := &models.Manifest{
		Version:    models.ManifestVersion,
		Downloaded: make(map[string]*models.DownloadedMeta),
	}
	for rows.Next() {
		var contentID string
		var meta models.DownloadedMeta
		if err := rows.Scan(&contentID, &meta.Version, &meta.Title, &meta.Subject, &meta.SizeInBytes, &meta.DownloadedAt); err != nil {
			return nil, err
		}
		manifest.Downloaded[contentID] = &meta
	}
	return manifest, rows.Err()
}

// GetManifestEntry retrieves the download metadata for a single content id.
func (s *Store) GetManifestEntry(contentID string) (*models.DownloadedMeta, error) {
	var meta models.DownloadedMeta
	err := s.db.QueryRow(`
        SELECT version, title, subject, size_bytes, downloaded_at
        FROM manifest WHERE content_id = ?
    `, contentID).Scan(&meta.Version, &meta.Title, &meta.Subject, &meta.SizeInBytes, &meta.DownloadedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	return &meta, nil
}

// StorageUsed recomputes the total bytes held by downloaded packages from
// the manifest. Recomputing instead of keeping a running counter means
// overlapping writes for the same id can never skew the total.
func (s *Store) StorageUsed() (int64, error) {
	var used int64
	err := s.db.QueryRow("SELECT COALESCE(SUM(size_bytes), 0) FROM manifest").Scan(&used)
	return used, err
}

// CountDownloaded returns the number of manifest entries.
func (s *Store) CountDownloaded() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM manifest").Scan(&count)
	return count, err
}
