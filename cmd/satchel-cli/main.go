// A small operational CLI for working with the local store directly:
// download content, list and remove what is held, and flush the sync queue
// without going through the web server.

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/satchel-app/satchel-go/internal/assets"
	"github.com/satchel-app/satchel-go/internal/config"
	"github.com/satchel-app/satchel-go/internal/db"
	"github.com/satchel-app/satchel-go/internal/offline"
	"github.com/satchel-app/satchel-go/internal/remote"
	"github.com/satchel-app/satchel-go/internal/store"
)

func main() {
	downloadID := flag.String("download", "", "Download the given content id")
	removeID := flag.String("remove", "", "Remove the given content id from the local store")
	list := flag.Bool("list", false, "List downloaded content")
	flush := flag.Bool("flush", false, "Upload pending interaction records")
	stats := flag.Bool("stats", false, "Show storage and sync statistics")
	flag.Parse()

	if *downloadID == "" && *removeID == "" && !*list && !*flush && !*stats {
		flag.Usage()
		os.Exit(2)
	}

	// Load configuration from config.yml
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize the database connection
	database, err := db.InitDB(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	// Run database migrations
	if err := db.RunMigrations(database, assets.MigrationsFS); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	st := store.New(database)
	client := remote.New(cfg.Remote.BaseURL, time.Duration(cfg.Remote.TimeoutSeconds)*time.Second)
	coord, err := offline.New(st, client, nil, offline.Options{
		StorageLimitBytes: cfg.Storage.LimitBytes,
		MaxUploadAttempts: cfg.Sync.MaxUploadAttempts,
	})
	if err != nil {
		log.Fatalf("Could not initialize sync coordinator: %v", err)
	}

	ctx := context.Background()

	switch {
	case *downloadID != "":
		if err := coord.DownloadContent(ctx, *downloadID); err != nil {
			log.Fatalf("Download failed: %v", err)
		}
		fmt.Printf("Downloaded %s.\n", *downloadID)

	case *removeID != "":
		if err := coord.RemoveContent(*removeID); err != nil {
			log.Fatalf("Remove failed: %v", err)
		}
		fmt.Printf("Removed %s.\n", *removeID)

	case *list:
		manifest, err := st.GetManifest()
		if err != nil {
			log.Fatalf("Could not read manifest: %v", err)
		}
		if len(manifest.Downloaded) == 0 {
			fmt.Println("No content downloaded.")
			return
		}
		for contentID, meta := range manifest.Downloaded {
			fmt.Printf("%s\tv%d\t%s\t%s\t%d bytes\n",
				contentID, meta.Version, meta.Title, meta.Subject, meta.SizeInBytes)
		}

	case *flush:
		uploaded, err := coord.FlushQueue(ctx)
		if err != nil {
			log.Fatalf("Flush failed after %d uploads: %v", uploaded, err)
		}
		fmt.Printf("Uploaded %d interaction record(s).\n", uploaded)

	case *stats:
		s, err := coord.Stats()
		if err != nil {
			log.Fatalf("Could not compute stats: %v", err)
		}
		fmt.Printf("Downloaded items:  %d\n", s.TotalDownloaded)
		fmt.Printf("Storage used:      %d bytes\n", s.StorageUsed)
		fmt.Printf("Storage limit:     %d bytes\n", s.StorageLimit)
		fmt.Printf("Pending uploads:   %d\n", s.PendingUploads)
		if s.LastSyncTime != nil {
			fmt.Printf("Last full sync:    %s\n", s.LastSyncTime.Format(time.RFC3339))
		} else {
			fmt.Println("Last full sync:    never")
		}
	}
}
