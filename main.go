package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/satchel-app/satchel-go/internal/api"
	"github.com/satchel-app/satchel-go/internal/auth"
	"github.com/satchel-app/satchel-go/internal/core"
	"github.com/satchel-app/satchel-go/internal/jobs"
	"github.com/satchel-app/satchel-go/internal/offline"
	"github.com/satchel-app/satchel-go/internal/remote"
	"github.com/satchel-app/satchel-go/internal/sideload"
	"github.com/satchel-app/satchel-go/internal/store"
	"github.com/satchel-app/satchel-go/internal/tracker"
	"github.com/satchel-app/satchel-go/internal/websocket"
)

const version = "1.2.0"

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize the core application components
	app, err := core.New()

	if err != nil {
		log.Fatalf("Fatal error during application setup: %v", err)
	}
	defer app.Close()
	app.Version = version

	// --- First User Provisioning ---
	st := store.New(app.DB)
	userCount, err := st.CountUsers()
	if err != nil {
		log.Fatalf("Could not check user count: %v", err)
	}
	if userCount == 0 {
		log.Println("No users found. Creating default admin account.")
		password := generateRandomPassword(12)
		passwordHash, _ := auth.HashPassword(password)
		_, err := st.CreateUser("admin", passwordHash, "admin")
		if err != nil {
			log.Fatalf("Could not create default admin user: %v", err)
		}
		log.Println("==================================================")
		log.Println("Default admin user created.")
		log.Printf("Username: admin")
		log.Printf("Password: %s", password)
		log.Println("Please change this password immediately.")
		log.Println("==================================================")
	}

	// Websocket hub for progress updates
	app.WsHub = websocket.NewHub()
	go app.WsHub.Run()

	// Remote content API client and the sync coordinator on top of it
	client := remote.New(app.Config.Remote.BaseURL, time.Duration(app.Config.Remote.TimeoutSeconds)*time.Second)
	coord, err := offline.New(st, client, app.WsHub, offline.Options{
		StorageLimitBytes: app.Config.Storage.LimitBytes,
		MaxUploadAttempts: app.Config.Sync.MaxUploadAttempts,
	})
	if err != nil {
		log.Fatalf("Could not initialize sync coordinator: %v", err)
	}

	// Find out where we stand before the first scheduled probe.
	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 10*time.Second)
	if coord.ProbeConnectivity(startupCtx) {
		if err := client.CheckCompatibility(startupCtx, version); err != nil {
			log.Printf("Warning: %v", err)
		}
	} else {
		log.Println("Remote service unreachable at startup, running offline.")
	}
	cancelStartup()

	trk := tracker.New(coord, time.Duration(app.Config.Tracker.MinSessionSeconds)*time.Second)

	// Background jobs: periodic update checks and queue flushes
	app.JobManager = jobs.NewManager()
	jobs.Start(app.JobManager, app.Config, coord)

	// Sideload watcher imports packages dropped into the sideload directory
	watcher := sideload.New(st, app.Config.Sideload.Path, func(contentID string) {
		if err := coord.Refresh(); err != nil {
			log.Printf("Warning: failed to refresh after sideload of %s: %v", contentID, err)
		}
	})
	if err := watcher.Start(); err != nil {
		log.Printf("Warning: sideload watcher could not start: %v", err)
	} else {
		defer watcher.Stop()
	}

	// Setup the API server
	server := api.NewServer(app, coord, trk)
	addr := fmt.Sprintf(":%d", app.Config.Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: server.Router(),
	}
	// --- Graceful Shutdown ---
	// Start the server in a goroutine so it doesn't block.
	go func() {
		log.Printf("Starting web server on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not start server: %v", err)
		}
	}()

	// Wait for an interrupt signal.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Record any sessions still open so they are not lost.
	trk.EndAll()

	// Create a context with a timeout to allow existing connections to finish.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Attempt a graceful shutdown.
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting.")
}

func generateRandomPassword(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	seededRand := rand.New(rand.NewSource(time.Now().UnixNano()))
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[seededRand.Intn(len(charset))]
	}
	return string(b)
}
