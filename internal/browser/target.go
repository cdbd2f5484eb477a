package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Target represents a debuggable target (page, worker, etc).
type Target struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Title        string `json:"title"`
	URL          string `json:"url"`
	Description  string `json:"description,omitempty"`
	FrontendURL  string `json:"devtoolsFrontendUrl,omitempty"`
	WebSocketURL string `json:"webSocketDebuggerUrl"`
}

// VersionInfo contains browser version information from /json/version.
type VersionInfo struct {
	Browser       string `json:"Browser"`
	ProtocolVer   string `json:"Protocol-Version"`
	UserAgent     string `json:"User-Agent"`
	V8Version     string `json:"V8-Version"`
	WebKitVersion string `json:"WebKit-Version"`
	WebSocketURL  string `json:"webSocketDebuggerUrl"`
}

// fetchJSON retrieves a DevTools discovery endpoint and decodes the body
// into out. Uses http.DefaultClient which has no timeout; callers must
// provide a context with timeout. This is acceptable for local endpoints
// where network issues are rare.
func fetchJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}

	return nil
}

// FetchTargets retrieves the list of available targets from the discovery endpoint.
func FetchTargets(ctx context.Context, host string, port int) ([]Target, error) {
	var targets []Target
	url := fmt.Sprintf("http://%s:%d/json", host, port)
	if err := fetchJSON(ctx, url, &targets); err != nil {
		return nil, err
	}
	return targets, nil
}

// FetchVersion retrieves browser version info from the discovery endpoint.
func FetchVersion(ctx context.Context, host string, port int) (*VersionInfo, error) {
	var info VersionInfo
	url := fmt.Sprintf("http://%s:%d/json/version", host, port)
	if err := fetchJSON(ctx, url, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// FindPageTarget returns the first page-type target from the list.
func FindPageTarget(targets []Target) *Target {
	for i := range targets {
		if targets[i].Type == "page" {
			return &targets[i]
		}
	}
	return nil
}
