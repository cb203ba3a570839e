package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/satchel-app/satchel-go/internal/models"
	"github.com/satchel-app/satchel-go/internal/remote"
)

// MockRemote is an httptest-backed stand-in for the remote content API.
// Tests seed it with packages and inspect what was uploaded to it.
type MockRemote struct {
	server *httptest.Server

	mu           sync.Mutex
	packages     map[string]*models.ContentPackage
	interactions []map[string]interface{}
}

// NewMockRemote starts a mock remote service. It is shut down with the test.
func NewMockRemote(t *testing.T) *MockRemote {
	t.Helper()
	m := &MockRemote{packages: make(map[string]*models.ContentPackage)}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	t.Cleanup(m.server.Close)
	return m
}

// Client returns a remote.Client pointed at the mock.
func (m *MockRemote) Client() *remote.Client {
	return remote.New(m.server.URL, 5*time.Second)
}

// URL returns the mock's base URL.
func (m *MockRemote) URL() string {
	return m.server.URL
}

// AddPackage seeds a package the mock will serve.
func (m *MockRemote) AddPackage(pkg *models.ContentPackage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.packages[pkg.ContentID] = pkg
}

// Interactions returns the interaction payloads received so far.
func (m *MockRemote) Interactions() []map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]map[string]interface{}, len(m.interactions))
	copy(out, m.interactions)
	return out
}

func (m *MockRemote) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasPrefix(r.URL.Path, "/api/offline/package/"):
		contentID := strings.TrimPrefix(r.URL.Path, "/api/offline/package/")
		m.mu.Lock()
		pkg, ok := m.packages[contentID]
		m.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(pkg)

	case r.URL.Path == "/api/offline/check-versions":
		var payload struct {
			ContentVersions map[string]int64 `json:"contentVersions"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		needed := []string{}
		m.mu.Lock()
		for id, version := range payload.ContentVersions {
			if pkg, ok := m.packages[id]; ok && pkg.Version > version {
				needed = append(needed, id)
			}
		}
		m.mu.Unlock()
		json.NewEncoder(w).Encode(map[string][]string{"updatesNeeded": needed})

	case r.URL.Path == "/api/offline/interactions":
		var payload map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		m.mu.Lock()
		m.interactions = append(m.interactions, payload)
		m.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)

	case r.URL.Path == "/api/offline/server-info":
		json.NewEncoder(w).Encode(remote.ServerInfo{Version: "1.0.0"})

	case r.URL.Path == "/api/offline/ping":
		w.WriteHeader(http.StatusOK)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}
