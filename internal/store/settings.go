// A small key/value partition for scalar service state.

package store

import (
	"database/sql"
	"time"
)

const lastSyncTimeKey = "last_sync_time"

// GetSetting retrieves a setting value, or an empty string if unset.
func (s *Store) GetSetting(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetSetting writes a setting value, replacing any previous one.
func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(`
        INSERT INTO settings (key, value) VALUES (?, ?)
        ON CONFLICT(key) DO UPDATE SET value = excluded.value;
    `, key, value)
	return err
}

// GetLastSyncTime returns the timestamp of the last completed sync, or nil
// if no sync has ever completed.
func (s *Store) GetLastSyncTime() (*time.Time, error) {
	value, err := s.GetSetting(lastSyncTimeKey)
	if err != nil || value == "" {
		return nil, err
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, err
	}
	return &ts, nil
}

// SetLastSyncTime records the completion time of a sync.
func (s *Store) SetLastSyncTime(t time.Time) error {
	return s.SetSetting(lastSyncTimeKey, t.UTC().Format(time.RFC3339))
}
