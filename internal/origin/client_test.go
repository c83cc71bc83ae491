package origin

// Uses mock HTTP servers to exercise the retry, cool-down and identity
// rotation paths without touching the network.

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// newTestClient returns a client pointed at url with all delays shrunk
// so tests run in milliseconds.
func newTestClient(url, banLog string) *Client {
	return NewClient(Options{
		BaseURL:       url,
		Timeout:       2 * time.Second,
		MaxRetries:    3,
		RatePerSecond: 1000,
		CoolDown429:   5 * time.Millisecond,
		BanDelayUnit:  time.Millisecond,
		BackoffUnit:   time.Millisecond,
		BanLogPath:    banLog,
	})
}

func TestFetchRetriesTransientFailures(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	c := newTestClient(server.URL, "")
	body, err := c.Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(body) != "ok" {
		t.Errorf("Expected body 'ok', got %q", body)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("Expected 3 attempts, got %d", calls)
	}
}

func TestFetchUpstreamErrorAfterExhaustedRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := newTestClient(server.URL, "")
	_, err := c.Fetch(context.Background(), server.URL)
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("Expected UpstreamError, got %v", err)
	}
	if upstream.StatusCode != http.StatusBadGateway {
		t.Errorf("Expected status 502, got %d", upstream.StatusCode)
	}
}

func TestFetchCoolsDownOn429(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 4 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	c := newTestClient(server.URL, "")
	body, err := c.Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(body) != "ok" {
		t.Errorf("Expected body 'ok', got %q", body)
	}
	// Four 429s exceed the retry budget, proving the cool-down loop
	// does not consume attempts.
	if atomic.LoadInt32(&calls) != 5 {
		t.Errorf("Expected 5 calls, got %d", calls)
	}
}

func TestFetch429RespectsContextDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := newTestClient(server.URL, "")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := c.Fetch(ctx, server.URL)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected context deadline error, got %v", err)
	}
}

func TestFetchRotatesIdentityOn403(t *testing.T) {
	var agents []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agents = append(agents, r.Header.Get("User-Agent"))
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	banLog := filepath.Join(t.TempDir(), "ban_alerts.log")
	c := newTestClient(server.URL, banLog)
	// Pin the starting identity so a rotation is observable even if the
	// random pick repeats.
	c.identity = Identity{UserAgent: "pinned-agent"}

	_, err := c.Fetch(context.Background(), server.URL)
	if !errors.Is(err, ErrBlocked) {
		t.Fatalf("Expected ErrBlocked, got %v", err)
	}
	if len(agents) != 3 {
		t.Fatalf("Expected 3 attempts, got %d", len(agents))
	}
	if agents[0] != "pinned-agent" {
		t.Errorf("First attempt should use the pinned identity, got %s", agents[0])
	}
	if agents[1] == "pinned-agent" || agents[2] == "pinned-agent" {
		t.Error("Identity was not rotated after 403")
	}

	// Ban alerts must reach the durable append log.
	data, err := os.ReadFile(banLog)
	if err != nil {
		t.Fatalf("Ban log was not written: %v", err)
	}
	if got := strings.Count(string(data), "403 Forbidden"); got != 3 {
		t.Errorf("Expected 3 ban alert lines, got %d", got)
	}
}

func TestFetchNetworkErrorAfterRetries(t *testing.T) {
	// A closed server guarantees connection failures.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	c := newTestClient(url, "")
	_, err := c.Fetch(context.Background(), url)
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("Expected NetworkError, got %v", err)
	}
}
