// Client for the external blob host that keeps finished artifacts.
// The host is append-only: a successful store returns a durable handle
// that a separate delivery collaborator later resolves.

package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Store is the capability the pipeline needs from the blob host.
type Store interface {
	Store(ctx context.Context, data []byte, filename string) (handle string, err error)
}

// HTTPStore talks to a blob host over HTTP.
type HTTPStore struct {
	client  *http.Client
	baseURL string
	token   string
}

// NewHTTPStore creates a client for the host at baseURL. Uploads can
// be large, so the timeout is generous.
func NewHTTPStore(baseURL, token string) *HTTPStore {
	return &HTTPStore{
		client:  &http.Client{Timeout: 2 * time.Minute},
		baseURL: baseURL,
		token:   token,
	}
}

type storeResponse struct {
	Handle string `json:"handle"`
}

// Store uploads data and returns the host's handle for it.
func (s *HTTPStore) Store(ctx context.Context, data []byte, filename string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/store", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Filename", filename)
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("blob store request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("blob store returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read blob store response: %w", err)
	}
	var parsed storeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode blob store response: %w", err)
	}
	if parsed.Handle == "" {
		return "", fmt.Errorf("blob store returned an empty handle")
	}
	return parsed.Handle, nil
}
