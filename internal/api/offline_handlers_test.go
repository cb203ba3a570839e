package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/satchel-app/satchel-go/internal/models"
	"github.com/satchel-app/satchel-go/internal/testutil"
)

func seedRemotePackage(mock *testutil.MockRemote, id string, version int64, title string) {
	mock.AddPackage(&models.ContentPackage{
		ContentID: id,
		Version:   version,
		Content:   models.ContentBody{Title: title, Tags: []string{"science"}},
	})
}

func TestOfflineHandlers(t *testing.T) {
	server, _, mock := testutil.SetupTestServer(t)
	router := server.Router()
	cookie := testutil.GetAuthCookie(t, server, "offline_user", "password", "user")

	do := func(method, path string) *httptest.ResponseRecorder {
		req, _ := http.NewRequest(method, path, nil)
		req.AddCookie(cookie)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	seedRemotePackage(mock, "phys-101", 2, "Newton's Laws")

	t.Run("Requires Authentication", func(t *testing.T) {
		req, _ := http.NewRequest("GET", "/api/offline/stats", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401 without a session, got %d", rr.Code)
		}
	})

	t.Run("Download Content", func(t *testing.T) {
		rr := do("POST", "/api/offline/content/phys-101/download")
		if rr.Code != http.StatusOK {
			t.Fatalf("Download failed: %d %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("Get Content", func(t *testing.T) {
		rr := do("GET", "/api/offline/content/phys-101")
		if rr.Code != http.StatusOK {
			t.Fatalf("GetContent failed: %d %s", rr.Code, rr.Body.String())
		}
		var pkg models.ContentPackage
		if err := json.Unmarshal(rr.Body.Bytes(), &pkg); err != nil {
			t.Fatalf("Invalid response: %v", err)
		}
		if pkg.Content.Title != "Newton's Laws" {
			t.Errorf("Unexpected package: %+v", pkg)
		}
	})

	t.Run("Get Missing Content Returns 404", func(t *testing.T) {
		rr := do("GET", "/api/offline/content/never-downloaded")
		if rr.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", rr.Code)
		}
	})

	t.Run("Download Unknown Content Returns 502", func(t *testing.T) {
		rr := do("POST", "/api/offline/content/nonexistent/download")
		if rr.Code != http.StatusBadGateway {
			t.Errorf("Expected 502 for a remote rejection, got %d", rr.Code)
		}
	})

	t.Run("Manifest Lists Download", func(t *testing.T) {
		rr := do("GET", "/api/offline/manifest")
		if rr.Code != http.StatusOK {
			t.Fatalf("Manifest failed: %d", rr.Code)
		}
		var manifest models.Manifest
		if err := json.Unmarshal(rr.Body.Bytes(), &manifest); err != nil {
			t.Fatalf("Invalid manifest: %v", err)
		}
		if _, ok := manifest.Downloaded["phys-101"]; !ok {
			t.Errorf("Manifest should list phys-101: %+v", manifest)
		}
	})

	t.Run("Stats", func(t *testing.T) {
		rr := do("GET", "/api/offline/stats")
		if rr.Code != http.StatusOK {
			t.Fatalf("Stats failed: %d", rr.Code)
		}
		var stats models.OfflineStats
		if err := json.Unmarshal(rr.Body.Bytes(), &stats); err != nil {
			t.Fatalf("Invalid stats: %v", err)
		}
		if stats.TotalDownloaded != 1 || stats.StorageUsed <= 0 {
			t.Errorf("Unexpected stats: %+v", stats)
		}
	})

	t.Run("Check For Updates", func(t *testing.T) {
		seedRemotePackage(mock, "phys-101", 3, "Newton's Laws")

		rr := do("POST", "/api/offline/updates/check")
		if rr.Code != http.StatusOK {
			t.Fatalf("Update check failed: %d %s", rr.Code, rr.Body.String())
		}
		var updates map[string]bool
		if err := json.Unmarshal(rr.Body.Bytes(), &updates); err != nil {
			t.Fatalf("Invalid response: %v", err)
		}
		if !updates["phys-101"] {
			t.Errorf("phys-101 should need an update: %v", updates)
		}
	})

	t.Run("Refresh Downloads", func(t *testing.T) {
		rr := do("POST", "/api/offline/sync/refresh")
		if rr.Code != http.StatusOK {
			t.Fatalf("Refresh failed: %d %s", rr.Code, rr.Body.String())
		}
		rr = do("GET", "/api/offline/content/phys-101")
		var pkg models.ContentPackage
		json.Unmarshal(rr.Body.Bytes(), &pkg)
		if pkg.Version != 3 {
			t.Errorf("Refresh should have pulled version 3, got %d", pkg.Version)
		}
	})

	t.Run("Export Content", func(t *testing.T) {
		rr := do("GET", "/api/offline/content/phys-101/export")
		if rr.Code != http.StatusOK {
			t.Fatalf("Export failed: %d", rr.Code)
		}
		if ct := rr.Header().Get("Content-Type"); ct != "application/zip" {
			t.Errorf("Expected zip content type, got %s", ct)
		}
		if rr.Body.Len() == 0 {
			t.Error("Export body is empty")
		}
	})

	t.Run("Sessions Feed The Queue", func(t *testing.T) {
		rr := do("POST", "/api/offline/sessions/phys-101/begin")
		if rr.Code != http.StatusOK {
			t.Fatalf("Begin session failed: %d %s", rr.Code, rr.Body.String())
		}

		// Ending immediately is below the minimum duration; nothing recorded.
		rr = do("POST", "/api/offline/sessions/phys-101/end")
		if rr.Code != http.StatusOK {
			t.Fatalf("End session failed: %d", rr.Code)
		}
		var result struct {
			Recorded bool `json:"recorded"`
		}
		json.Unmarshal(rr.Body.Bytes(), &result)
		if result.Recorded {
			t.Error("An instant session should not be recorded")
		}
	})

	t.Run("Session For Missing Content Returns 404", func(t *testing.T) {
		rr := do("POST", "/api/offline/sessions/never-downloaded/begin")
		if rr.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", rr.Code)
		}
	})

	t.Run("Flush Queue", func(t *testing.T) {
		rr := do("POST", "/api/offline/sync/flush")
		if rr.Code != http.StatusOK {
			t.Fatalf("Flush failed: %d %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("Remove Content", func(t *testing.T) {
		rr := do("DELETE", "/api/offline/content/phys-101")
		if rr.Code != http.StatusNoContent {
			t.Fatalf("Remove failed: %d", rr.Code)
		}
		rr = do("GET", "/api/offline/content/phys-101")
		if rr.Code != http.StatusNotFound {
			t.Errorf("Expected 404 after removal, got %d", rr.Code)
		}
	})

	t.Run("Status Reports Online", func(t *testing.T) {
		rr := do("GET", "/api/offline/status")
		if rr.Code != http.StatusOK {
			t.Fatalf("Status failed: %d", rr.Code)
		}
		var status map[string]bool
		json.Unmarshal(rr.Body.Bytes(), &status)
		if !status["online"] {
			t.Error("Coordinator talking to a live mock should be online")
		}
	})

	t.Run("Queue Listing", func(t *testing.T) {
		rr := do("GET", "/api/offline/queue")
		if rr.Code != http.StatusOK {
			t.Fatalf("Queue listing failed: %d", rr.Code)
		}
		var items []models.SyncQueueItem
		if err := json.Unmarshal(rr.Body.Bytes(), &items); err != nil {
			t.Fatalf("Invalid queue response: %v", err)
		}
	})
}

func TestAdminHandlers(t *testing.T) {
	server, _, _ := testutil.SetupTestServer(t)
	router := server.Router()

	adminCookie := testutil.GetAuthCookie(t, server, "admin_user", "password", "admin")
	userCookie := testutil.GetAuthCookie(t, server, "plain_user", "password", "user")

	t.Run("Jobs Status Requires Admin", func(t *testing.T) {
		req, _ := http.NewRequest("GET", "/api/admin/jobs/status", nil)
		req.AddCookie(userCookie)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusForbidden {
			t.Errorf("Expected 403 for non-admin, got %d", rr.Code)
		}
	})

	t.Run("Jobs Status For Admin", func(t *testing.T) {
		req, _ := http.NewRequest("GET", "/api/admin/jobs/status", nil)
		req.AddCookie(adminCookie)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Errorf("Expected 200 for admin, got %d", rr.Code)
		}
	})

	t.Run("Run Unknown Job", func(t *testing.T) {
		req, _ := http.NewRequest("POST", "/api/admin/jobs/run", bytes.NewBufferString(`{"job_id":"no-such-job"}`))
		req.Header.Set("Content-Type", "application/json")
		req.AddCookie(adminCookie)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusConflict {
			t.Errorf("Expected 409 for an unknown job, got %d", rr.Code)
		}
	})
}
