// The HTTP client for the remote content API. All network traffic to the
// upstream service goes through this package so the rest of the code only
// ever sees typed results and errors.

package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/satchel-app/satchel-go/internal/models"
)

// StatusError reports a non-2xx response from the remote service, so
// callers can distinguish "server said no" from "network is down".
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote returned status %d", e.Status)
}

// Client talks to the remote content API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the remote content API rooted at baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// FetchPackage downloads the full offline bundle for one content id.
func (c *Client) FetchPackage(ctx context.Context, contentID string) (*models.ContentPackage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/offline/package/%s", c.baseURL, contentID), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch package %s: %w", contentID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Status: resp.StatusCode}
	}

	var pkg models.ContentPackage
	if err := json.NewDecoder(resp.Body).Decode(&pkg); err != nil {
		return nil, fmt.Errorf("failed to decode package %s: %w", contentID, err)
	}
	if pkg.ContentID == "" {
		pkg.ContentID = contentID
	}
	return &pkg, nil
}

type checkVersionsRequest struct {
	ContentVersions map[string]int64 `json:"contentVersions"`
}

type checkVersionsResponse struct {
	UpdatesNeeded []string `json:"updatesNeeded"`
}

// CheckVersions sends the full map of locally held content versions and
// returns the subset of ids the server considers outdated.
func (c *Client) CheckVersions(ctx context.Context, versions map[string]int64) ([]string, error) {
	body, err := json.Marshal(checkVersionsRequest{ContentVersions: versions})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/offline/check-versions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to check versions: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Status: resp.StatusCode}
	}

	var parsed checkVersionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode check-versions response: %w", err)
	}
	return parsed.UpdatesNeeded, nil
}

type interactionRequest struct {
	Type            string `json:"type"`
	ContentID       string `json:"contentId"`
	SessionID       string `json:"sessionId"`
	DurationSeconds int64  `json:"durationSeconds"`
	RecordedAt      string `json:"recordedAt"`
}

// SubmitInteraction uploads one recorded viewing session.
func (c *Client) SubmitInteraction(ctx context.Context, item *models.SyncQueueItem) error {
	body, err := json.Marshal(interactionRequest{
		Type:            item.Type,
		ContentID:       item.ContentID,
		SessionID:       item.SessionID,
		DurationSeconds: item.DurationSeconds,
		RecordedAt:      item.CreatedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/offline/interactions", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to submit interaction %s: %w", item.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Status: resp.StatusCode}
	}
	return nil
}

// ServerInfo describes the remote service version requirements.
type ServerInfo struct {
	Version          string `json:"version"`
	MinClientVersion string `json:"minClientVersion"`
}

// GetServerInfo fetches the remote service's version advertisement.
func (c *Client) GetServerInfo(ctx context.Context) (*ServerInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/offline/server-info", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch server info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Status: resp.StatusCode}
	}
	var info ServerInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode server info: %w", err)
	}
	return &info, nil
}

// CheckCompatibility verifies this client version against the server's
// advertised minimum. A server that advertises no minimum accepts any client.
func (c *Client) CheckCompatibility(ctx context.Context, clientVersion string) error {
	info, err := c.GetServerInfo(ctx)
	if err != nil {
		return err
	}
	if info.MinClientVersion == "" {
		return nil
	}
	min, err := semver.NewVersion(info.MinClientVersion)
	if err != nil {
		return fmt.Errorf("server advertised invalid minimum version %q: %w", info.MinClientVersion, err)
	}
	current, err := semver.NewVersion(clientVersion)
	if err != nil {
		return fmt.Errorf("invalid client version %q: %w", clientVersion, err)
	}
	if current.LessThan(min) {
		return fmt.Errorf("client version %s is older than the server minimum %s", clientVersion, info.MinClientVersion)
	}
	return nil
}

// Ping probes the remote service to confirm it is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/offline/ping", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("remote unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Status: resp.StatusCode}
	}
	return nil
}
