// Handlers for the offline content endpoints. Typed coordinator errors
// map onto HTTP statuses here, so the UI can tell "you are offline" apart
// from "that content does not exist".

package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/satchel-app/satchel-go/internal/export"
	"github.com/satchel-app/satchel-go/internal/models"
	"github.com/satchel-app/satchel-go/internal/offline"
	"github.com/satchel-app/satchel-go/internal/remote"
)

// respondWithOfflineError translates coordinator errors into HTTP statuses.
func respondWithOfflineError(w http.ResponseWriter, err error) {
	var statusErr *remote.StatusError
	switch {
	case errors.Is(err, offline.ErrNotFound):
		RespondWithError(w, http.StatusNotFound, "Content has not been downloaded")
	case errors.Is(err, offline.ErrOffline):
		RespondWithError(w, http.StatusServiceUnavailable, "Remote service is unreachable")
	case errors.Is(err, offline.ErrSyncInProgress):
		RespondWithError(w, http.StatusConflict, "A sync is already in progress")
	case errors.As(err, &statusErr):
		RespondWithError(w, http.StatusBadGateway, fmt.Sprintf("Remote service returned status %d", statusErr.Status))
	default:
		RespondWithError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, map[string]bool{"online": s.coord.IsOnline()})
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.coord.Stats()
	if err != nil {
		respondWithOfflineError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, stats)
}

func (s *Server) handleGetManifest(w http.ResponseWriter, r *http.Request) {
	manifest, err := s.store.GetManifest()
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to read manifest")
		return
	}
	RespondWithJSON(w, http.StatusOK, manifest)
}

func (s *Server) handleGetContent(w http.ResponseWriter, r *http.Request) {
	contentID := chi.URLParam(r, "contentID")
	pkg, err := s.coord.GetContent(contentID)
	if err != nil {
		respondWithOfflineError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, pkg)
}

func (s *Server) handleDownloadContent(w http.ResponseWriter, r *http.Request) {
	contentID := chi.URLParam(r, "contentID")
	if err := s.coord.DownloadContent(r.Context(), contentID); err != nil {
		respondWithOfflineError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Download complete"})
}

func (s *Server) handleRemoveContent(w http.ResponseWriter, r *http.Request) {
	contentID := chi.URLParam(r, "contentID")
	if err := s.coord.RemoveContent(contentID); err != nil {
		respondWithOfflineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExportContent(w http.ResponseWriter, r *http.Request) {
	contentID := chi.URLParam(r, "contentID")
	pkg, err := s.coord.GetContent(contentID)
	if err != nil {
		respondWithOfflineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.ArchiveFilename(pkg)))
	if err := export.WriteArchive(w, pkg, s.app.Version); err != nil {
		// Headers are already sent; nothing to do but log via the middleware.
		return
	}
}

func (s *Server) handleGetUpdateAvailability(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, s.coord.UpdateAvailability())
}

func (s *Server) handleCheckForUpdates(w http.ResponseWriter, r *http.Request) {
	updates, err := s.coord.CheckForUpdates(r.Context())
	if err != nil {
		respondWithOfflineError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, updates)
}

func (s *Server) handleRefreshDownloads(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.RefreshDownloads(r.Context()); err != nil {
		respondWithOfflineError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Refresh complete"})
}

func (s *Server) handleFlushQueue(w http.ResponseWriter, r *http.Request) {
	uploaded, err := s.coord.FlushQueue(r.Context())
	if err != nil {
		respondWithOfflineError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]int{"uploaded": uploaded})
}

func (s *Server) handleGetQueue(w http.ResponseWriter, r *http.Request) {
	items, err := s.store.ListQueueItems()
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to read sync queue")
		return
	}
	if items == nil {
		items = []*models.SyncQueueItem{}
	}
	RespondWithJSON(w, http.StatusOK, items)
}

func (s *Server) handleBeginSession(w http.ResponseWriter, r *http.Request) {
	contentID := chi.URLParam(r, "contentID")

	// Sessions only make sense for content that is actually on device.
	if _, err := s.coord.GetContent(contentID); err != nil {
		respondWithOfflineError(w, err)
		return
	}
	session := s.tracker.Begin(contentID)
	RespondWithJSON(w, http.StatusOK, map[string]string{"sessionId": session.ID})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	contentID := chi.URLParam(r, "contentID")
	item, err := s.tracker.End(contentID)
	if err != nil {
		respondWithOfflineError(w, err)
		return
	}
	if item == nil {
		// Too short to record, or no session was active.
		RespondWithJSON(w, http.StatusOK, map[string]bool{"recorded": false})
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]interface{}{"recorded": true, "item": item})
}
