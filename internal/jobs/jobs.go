package jobs

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/satchel-app/satchel-go/internal/config"
	"github.com/satchel-app/satchel-go/internal/offline"
)

// Syncer is the slice of the sync coordinator the scheduled jobs drive.
type Syncer interface {
	CheckForUpdates(ctx context.Context) (map[string]bool, error)
	FlushQueue(ctx context.Context) (int, error)
	ProbeConnectivity(ctx context.Context) bool
	IsOnline() bool
}

const (
	JobUpdateCheck = "update-check"
	JobQueueFlush  = "queue-flush"
)

// Start registers the periodic sync jobs with the manager and starts the
// scheduler. Both jobs skip silently while the coordinator is offline; the
// probe in front of each run keeps the connectivity flag fresh.
func Start(m *Manager, cfg *config.Config, coord Syncer) {
	m.Register(JobUpdateCheck, "Check for content updates", func(ctx context.Context) {
		if !coord.ProbeConnectivity(ctx) {
			log.Println("Skipping update check, remote is unreachable.")
			return
		}
		updates, err := coord.CheckForUpdates(ctx)
		if err != nil {
			log.Printf("Scheduled update check failed: %v", err)
			return
		}
		stale := 0
		for _, needsUpdate := range updates {
			if needsUpdate {
				stale++
			}
		}
		log.Printf("Update check complete: %d of %d items have updates.", stale, len(updates))
	})

	m.Register(JobQueueFlush, "Upload queued interactions", func(ctx context.Context) {
		if !coord.IsOnline() && !coord.ProbeConnectivity(ctx) {
			log.Println("Skipping queue flush, remote is unreachable.")
			return
		}
		uploaded, err := coord.FlushQueue(ctx)
		if err != nil && !errors.Is(err, offline.ErrSyncInProgress) {
			log.Printf("Scheduled queue flush failed after %d uploads: %v", uploaded, err)
			return
		}
		if uploaded > 0 {
			log.Printf("Queue flush complete: %d interactions uploaded.", uploaded)
		}
	})

	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	scheduleJob(s, m, JobUpdateCheck, cfg.Sync.UpdateCheckInterval)
	scheduleJob(s, m, JobQueueFlush, cfg.Sync.FlushInterval)

	log.Println("Starting background job scheduler...")
	s.StartAsync()
}

func scheduleJob(s *gocron.Scheduler, m *Manager, jobID string, intervalMinutes int) {
	if intervalMinutes == 0 {
		log.Printf("Interval for '%s' is 0, scheduled run is disabled.", jobID)
		return
	}

	log.Printf("Scheduling job: '%s' to run every %d minutes.", jobID, intervalMinutes)
	_, err := s.Every(intervalMinutes).Minutes().Do(func() {
		log.Println("Scheduler is triggering job:", jobID)
		// Submit the job to the manager instead of running it directly.
		// This prevents conflicts with manually triggered jobs.
		if err := m.RunJob(jobID); err != nil {
			log.Printf("Scheduled job '%s' could not start: %v", jobID, err)
		}
	})
	if err != nil {
		log.Printf("Error scheduling '%s' job: %v", jobID, err)
	}
}
