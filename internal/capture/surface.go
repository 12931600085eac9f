package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/matthock/snipsync/pkg/types"
)

const pingTimeout = 2 * time.Second

// HTTPSurface reaches the interactive confirmation surface over HTTP. The
// ping and the draft delivery share one endpoint, discriminated by action.
type HTTPSurface struct {
	url        string
	httpClient *http.Client
}

// NewHTTPSurface creates a surface client for the given endpoint.
func NewHTTPSurface(url string) *HTTPSurface {
	return &HTTPSurface{
		url:        url,
		httpClient: &http.Client{Timeout: pingTimeout},
	}
}

// Ping probes the surface with {"action":"ping"} and expects {"pong":true}.
// Anything else, including timeouts, reads as unreachable. Never retried.
func (s *HTTPSurface) Ping(ctx context.Context) bool {
	body, _ := json.Marshal(map[string]string{"action": "ping"})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	var ack struct {
		Pong bool `json:"pong"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return false
	}
	return ack.Pong
}

// Deliver hands a draft to the surface for interactive confirmation.
func (s *HTTPSurface) Deliver(ctx context.Context, draft types.Task) error {
	payload, err := json.Marshal(map[string]any{"action": "capture", "draft": draft})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("surface rejected draft: status %d", resp.StatusCode)
	}
	return nil
}
