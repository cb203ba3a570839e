// Shared test server setup utilities, which simplify all API tests.

package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/satchel-app/satchel-go/internal/api"
	"github.com/satchel-app/satchel-go/internal/config"
	"github.com/satchel-app/satchel-go/internal/core"
	"github.com/satchel-app/satchel-go/internal/jobs"
	"github.com/satchel-app/satchel-go/internal/offline"
	"github.com/satchel-app/satchel-go/internal/store"
	"github.com/satchel-app/satchel-go/internal/tracker"
	"github.com/satchel-app/satchel-go/internal/websocket"
)

func SetupTestApp(t *testing.T) *core.App {
	t.Helper()
	db := SetupTestDB(t)

	cfg := &config.Config{}
	hub := websocket.NewHub()
	go hub.Run()
	return &core.App{
		Config:     cfg,
		DB:         db,
		WsHub:      hub,
		JobManager: jobs.NewManager(),
		Version:    "test",
	}
}

// SetupTestServer initializes a full core.App, sync coordinator, and
// api.Server for integration testing. The coordinator talks to a mock
// remote service started for the test.
func SetupTestServer(t *testing.T) (*api.Server, *sql.DB, *MockRemote) {
	t.Helper()
	app := SetupTestApp(t)

	mock := NewMockRemote(t)
	st := store.New(app.DB)
	coord, err := offline.New(st, mock.Client(), app.WsHub, offline.Options{
		StorageLimitBytes: 1 << 30,
		MaxUploadAttempts: 3,
	})
	if err != nil {
		t.Fatalf("Failed to create coordinator: %v", err)
	}

	trk := tracker.New(coord, 10*time.Second)
	server := api.NewServer(app, coord, trk)
	return server, app.DB, mock
}
