package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/satchel-app/satchel-go/internal/config"
)

type fakeSyncer struct {
	mu      sync.Mutex
	online  bool
	checked bool
	flushed bool
	updates map[string]bool
}

func (f *fakeSyncer) CheckForUpdates(ctx context.Context) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checked = true
	return f.updates, nil
}

func (f *fakeSyncer) FlushQueue(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushed = true
	return 1, nil
}

func (f *fakeSyncer) ProbeConnectivity(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online
}

func (f *fakeSyncer) IsOnline() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online
}

// Intervals of 0 disable the scheduler, so these tests drive the
// registered jobs through the manager directly.
func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Sync.UpdateCheckInterval = 0
	cfg.Sync.FlushInterval = 0
	return cfg
}

func waitForIdle(t *testing.T, m *Manager) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		m.mu.Lock()
		running := m.running
		m.mu.Unlock()
		if !running {
			return
		}
		select {
		case <-deadline:
			t.Fatal("Job did not finish in time")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestStartRegistersJobs(t *testing.T) {
	m := NewManager()
	Start(m, testConfig(), &fakeSyncer{online: true})

	statuses := m.GetStatus()
	found := map[string]bool{}
	for _, s := range statuses {
		found[s.ID] = true
	}
	if !found[JobUpdateCheck] || !found[JobQueueFlush] {
		t.Fatalf("Expected both sync jobs registered, got %v", found)
	}
}

func TestUpdateCheckJob(t *testing.T) {
	m := NewManager()
	syncer := &fakeSyncer{online: true, updates: map[string]bool{"phys-101": true}}
	Start(m, testConfig(), syncer)

	if err := m.RunJob(JobUpdateCheck); err != nil {
		t.Fatalf("RunJob failed: %v", err)
	}
	waitForIdle(t, m)

	syncer.mu.Lock()
	defer syncer.mu.Unlock()
	if !syncer.checked {
		t.Error("Update check job should have called CheckForUpdates")
	}
}

func TestUpdateCheckJobSkipsOffline(t *testing.T) {
	m := NewManager()
	syncer := &fakeSyncer{online: false}
	Start(m, testConfig(), syncer)

	if err := m.RunJob(JobUpdateCheck); err != nil {
		t.Fatalf("RunJob failed: %v", err)
	}
	waitForIdle(t, m)

	syncer.mu.Lock()
	defer syncer.mu.Unlock()
	if syncer.checked {
		t.Error("Update check must not hit the remote while offline")
	}
}

func TestQueueFlushJob(t *testing.T) {
	m := NewManager()
	syncer := &fakeSyncer{online: true}
	Start(m, testConfig(), syncer)

	if err := m.RunJob(JobQueueFlush); err != nil {
		t.Fatalf("RunJob failed: %v", err)
	}
	waitForIdle(t, m)

	syncer.mu.Lock()
	defer syncer.mu.Unlock()
	if !syncer.flushed {
		t.Error("Flush job should have called FlushQueue")
	}
}
