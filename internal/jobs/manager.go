package jobs

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Task is the function signature for a background job.
type Task func(ctx context.Context)

type JobStatus struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"` // "idle", "running", "success", "failed"
	Message   string    `json:"message"`
	StartTime time.Time `json:"start_time,omitempty"`
	EndTime   time.Time `json:"end_time,omitempty"`
}

// Manager tracks registered background jobs and runs them one at a time.
// Scheduled and manually triggered runs share the same gate, so a manual
// flush can never overlap a scheduled one.
type Manager struct {
	mu      sync.Mutex
	jobs    map[string]Task
	status  map[string]*JobStatus
	running bool
}

func NewManager() *Manager {
	return &Manager{
		jobs:   make(map[string]Task),
		status: make(map[string]*JobStatus),
	}
}

func (m *Manager) Register(id, name string, task Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[id] = task
	m.status[id] = &JobStatus{ID: id, Name: name, Status: "idle"}
}

// RunJob starts the named job in the background. Only one job runs at a
// time; a second request while one is active is rejected.
func (m *Manager) RunJob(id string) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("a job is already running")
	}

	task, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("job '%s' not found", id)
	}

	m.running = true
	status := m.status[id]
	status.Status = "running"
	status.StartTime = time.Now()
	status.Message = "Job started..."
	m.mu.Unlock()

	log.Printf("Starting job: %s", id)
	// Run the actual task in a new goroutine so it doesn't block.
	go func() {
		defer func() {
			// Ensure we always update the status and unlock the manager
			if r := recover(); r != nil {
				log.Printf("Job '%s' panicked: %v", id, r)
				status.Status = "failed"
				status.Message = fmt.Sprintf("Job panicked: %v", r)
			}

			m.mu.Lock()
			status.EndTime = time.Now()
			if status.Status == "running" { // If not already set to "failed"
				status.Status = "success"
				status.Message = "Job completed successfully."
			}
			m.running = false
			m.mu.Unlock()
			log.Printf("Finished job: %s", id)
		}()

		task(context.Background())
	}()
	return nil
}

func (m *Manager) GetStatus() []*JobStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	var statuses []*JobStatus
	for _, s := range m.status {
		statuses = append(statuses, s)
	}
	return statuses
}
