// Watches the sideload directory for pre-built package files. Dropping a
// package JSON into the directory imports it into the local store without
// touching the network, which is how content reaches fully air-gapped
// installs.

package sideload

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/satchel-app/satchel-go/internal/models"
	"github.com/satchel-app/satchel-go/internal/store"
)

// Watcher imports sideloaded package files as they appear.
type Watcher struct {
	st       *store.Store
	path     string
	onImport func(contentID string)

	watcher       *fsnotify.Watcher
	pendingPaths  map[string]bool
	mu            sync.Mutex
	debounceTimer *time.Timer
	debounceDelay time.Duration
	stopChan      chan struct{}
}

// New creates a watcher over path. onImport, if non-nil, is called after
// each successful import so the caller can refresh its view of the store.
func New(st *store.Store, path string, onImport func(contentID string)) *Watcher {
	return &Watcher{
		st:            st,
		path:          path,
		onImport:      onImport,
		pendingPaths:  make(map[string]bool),
		debounceDelay: 2 * time.Second, // Wait for the copy to settle before importing
		stopChan:      make(chan struct{}),
	}
}

// Start imports anything already sitting in the directory, then begins
// watching for new files.
func (w *Watcher) Start() error {
	if err := os.MkdirAll(w.path, 0755); err != nil {
		return fmt.Errorf("failed to create sideload directory: %w", err)
	}

	if imported, err := w.ImportDir(); err != nil {
		log.Printf("Initial sideload scan failed: %v", err)
	} else if imported > 0 {
		log.Printf("Imported %d sideloaded package(s) on startup.", imported)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = watcher

	if err := watcher.Add(w.path); err != nil {
		watcher.Close()
		return err
	}

	log.Printf("Sideload watcher started for: %s", w.path)
	go w.processEvents()
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	close(w.stopChan)
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}

func (w *Watcher) processEvents() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("Sideload watcher error: %v", err)

		case <-w.stopChan:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	// Chmod events fire when files are merely opened or browsed.
	if event.Op == fsnotify.Chmod {
		return
	}
	relevant := event.Op&fsnotify.Create == fsnotify.Create ||
		event.Op&fsnotify.Write == fsnotify.Write
	if !relevant || !isPackageFile(event.Name) {
		return
	}

	w.mu.Lock()
	w.pendingPaths[event.Name] = true
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounceDelay, w.importPending)
	w.mu.Unlock()
}

func isPackageFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

func (w *Watcher) importPending() {
	w.mu.Lock()
	if len(w.pendingPaths) == 0 {
		w.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(w.pendingPaths))
	for path := range w.pendingPaths {
		paths = append(paths, path)
	}
	w.pendingPaths = make(map[string]bool)
	w.mu.Unlock()

	for _, path := range paths {
		if err := w.ImportFile(path); err != nil {
			log.Printf("Failed to import sideloaded file %s: %v", path, err)
		}
	}
}

// ImportDir imports every package file currently in the directory and
// returns the number imported. Files that fail to parse are left in place
// so the operator can inspect them.
func (w *Watcher) ImportDir() (int, error) {
	entries, err := os.ReadDir(w.path)
	if err != nil {
		return 0, err
	}

	imported := 0
	for _, entry := range entries {
		if entry.IsDir() || !isPackageFile(entry.Name()) {
			continue
		}
		fullPath := filepath.Join(w.path, entry.Name())
		if err := w.ImportFile(fullPath); err != nil {
			log.Printf("Failed to import sideloaded file %s: %v", fullPath, err)
			continue
		}
		imported++
	}
	return imported, nil
}

// ImportFile reads one package file, stores it, and removes the file on
// success.
func (w *Watcher) ImportFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var pkg models.ContentPackage
	if err := json.Unmarshal(data, &pkg); err != nil {
		return fmt.Errorf("not a valid package file: %w", err)
	}
	if pkg.ContentID == "" {
		return fmt.Errorf("package file is missing a content id")
	}

	if _, err := w.st.SavePackage(&pkg); err != nil {
		return fmt.Errorf("failed to store sideloaded package %s: %w", pkg.ContentID, err)
	}

	if err := os.Remove(path); err != nil {
		log.Printf("Imported %s but could not remove source file: %v", pkg.ContentID, err)
	}
	log.Printf("Sideloaded package %s (version %d).", pkg.ContentID, pkg.Version)

	if w.onImport != nil {
		w.onImport(pkg.ContentID)
	}
	return nil
}
