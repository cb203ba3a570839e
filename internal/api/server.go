// It defines the API server, sets up the routes (endpoints)
// using chi, and links them to the handler functions.

package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/satchel-app/satchel-go/internal/core"
	"github.com/satchel-app/satchel-go/internal/offline"
	"github.com/satchel-app/satchel-go/internal/store"
	"github.com/satchel-app/satchel-go/internal/tracker"
)

// Server holds the dependencies for our API.
type Server struct {
	app     *core.App
	db      *sql.DB
	store   *store.Store
	coord   *offline.Coordinator
	tracker *tracker.Tracker
}

// Store returns the store instance.
func (s *Server) Store() *store.Store {
	return s.store
}

// Coordinator returns the sync coordinator.
func (s *Server) Coordinator() *offline.Coordinator {
	return s.coord
}

// NewServer creates a new Server instance. The coordinator and tracker are
// constructed by the caller so the CLI and tests can share them.
func NewServer(app *core.App, coord *offline.Coordinator, trk *tracker.Tracker) *Server {
	return &Server{
		app:     app,
		db:      app.DB,
		store:   store.New(app.DB),
		coord:   coord,
		tracker: trk,
	}
}

// Router sets up and returns the main router for the application.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)    // Logs requests to the console
	r.Use(middleware.Recoverer) // Recovers from panics
	r.Use(middleware.Timeout(60 * time.Second))

	// API routes
	r.Post("/api/users/login", s.handleLogin)
	r.Get("/api/version", s.handleGetVersion)

	r.Group(func(r chi.Router) {
		r.Use(s.AuthMiddleware)

		r.Post("/api/users/logout", s.handleLogout)
		r.Get("/api/users/me", s.handleGetMe)
		r.Put("/api/users/me/password", s.handleChangePassword)

		r.Route("/api/offline", func(r chi.Router) {
			r.Get("/status", s.handleGetStatus)
			r.Get("/stats", s.handleGetStats)
			r.Get("/manifest", s.handleGetManifest)

			r.Get("/content/{contentID}", s.handleGetContent)
			r.Post("/content/{contentID}/download", s.handleDownloadContent)
			r.Delete("/content/{contentID}", s.handleRemoveContent)
			r.Get("/content/{contentID}/export", s.handleExportContent)

			r.Get("/updates", s.handleGetUpdateAvailability)
			r.Post("/updates/check", s.handleCheckForUpdates)

			r.Post("/sync/refresh", s.handleRefreshDownloads)
			r.Post("/sync/flush", s.handleFlushQueue)
			r.Get("/queue", s.handleGetQueue)

			r.Post("/sessions/{contentID}/begin", s.handleBeginSession)
			r.Post("/sessions/{contentID}/end", s.handleEndSession)
		})

		// Admin Routes
		r.Route("/api/admin", func(r chi.Router) {
			r.Use(s.AdminOnlyMiddleware)

			r.Get("/jobs/status", s.handleGetAdminJobsStatus)
			r.Post("/jobs/run", s.handleRunAdminJob)

			r.Get("/users", s.handleAdminListUsers)
			r.Post("/users", s.handleAdminCreateUser)
			r.Put("/users/{userID}", s.handleAdminUpdateUser)
			r.Delete("/users/{userID}", s.handleAdminDeleteUser)
		})
	})

	// WebSocket route
	r.Get("/ws/progress", func(w http.ResponseWriter, r *http.Request) {
		s.app.WsHub.ServeWs(w, r)
	})

	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		if err := s.db.Ping(); err != nil {
			RespondWithError(w, http.StatusServiceUnavailable, "Database connection failed")
			return
		}
		RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}
