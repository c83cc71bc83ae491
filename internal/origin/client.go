// HTTP client for the origin catalog API. It owns retries, backoff,
// user-agent rotation and the handling of rate-limit and ban signals,
// so the rest of the system only ever sees clean results or the error
// taxonomy in errors.go.

package origin

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Recorder is the slice of the metrics collector the client needs.
type Recorder interface {
	APICall()
	BanAlert()
}

type nopRecorder struct{}

func (nopRecorder) APICall()  {}
func (nopRecorder) BanAlert() {}

// Options tunes the client. The zero value of any field falls back to
// the production defaults; tests shrink the delays.
type Options struct {
	BaseURL       string
	Timeout       time.Duration // per-request timeout
	MaxRetries    int
	RatePerSecond float64       // client-side cooperative throttle
	CoolDown429   time.Duration // long fixed wait on HTTP 429
	BanDelayUnit  time.Duration // 403 waits BanDelayUnit × attempt
	BackoffUnit   time.Duration // transient waits BackoffUnit × 2^attempt
	BanLogPath    string        // durable append log for ban alerts
	Metrics       Recorder
}

// Client issues requests against the origin API. Each client carries
// one Identity; a 403 replaces it with a fresh one before retrying.
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	maxRetries int

	coolDown429  time.Duration
	banDelayUnit time.Duration
	backoffUnit  time.Duration
	banLogPath   string
	metrics      Recorder

	mu       sync.Mutex
	identity Identity
}

// NewClient creates a client with a randomly chosen identity.
func NewClient(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.RatePerSecond == 0 {
		opts.RatePerSecond = 2
	}
	if opts.CoolDown429 == 0 {
		opts.CoolDown429 = 5 * time.Minute
	}
	if opts.BanDelayUnit == 0 {
		opts.BanDelayUnit = time.Minute
	}
	if opts.BackoffUnit == 0 {
		opts.BackoffUnit = time.Second
	}
	if opts.Metrics == nil {
		opts.Metrics = nopRecorder{}
	}
	return &Client{
		httpClient:   &http.Client{Timeout: opts.Timeout},
		baseURL:      opts.BaseURL,
		limiter:      rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1),
		maxRetries:   opts.MaxRetries,
		coolDown429:  opts.CoolDown429,
		banDelayUnit: opts.BanDelayUnit,
		backoffUnit:  opts.BackoffUnit,
		banLogPath:   opts.BanLogPath,
		metrics:      opts.Metrics,
		identity:     NewIdentity(),
	}
}

// BaseURL returns the configured origin root.
func (c *Client) BaseURL() string { return c.baseURL }

// Fetch performs a GET against url with the full protection stack:
// cooperative rate limiting, bounded retries with exponential backoff,
// an open-ended cool-down loop on 429 (bounded only by ctx), and
// identity rotation with escalating delays on 403.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	var lastStatus int
	var lastErr error

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		req.Header.Set("User-Agent", c.identity.UserAgent)
		httpClient := c.httpClient
		c.mu.Unlock()
		req.Header.Set("Referer", c.baseURL+"/")

		resp, err := httpClient.Do(req)
		if err != nil {
			lastErr = err
			log.Printf("Origin request error (attempt %d/%d): %v", attempt+1, c.maxRetries, err)
			if err := sleepCtx(ctx, c.backoffUnit*(1<<attempt)); err != nil {
				return nil, err
			}
			continue
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			resp.Body.Close()
			log.Printf("Origin rate limit hit (429), cooling down for %s", c.coolDown429)
			if err := sleepCtx(ctx, c.coolDown429); err != nil {
				return nil, err
			}
			// A 429 is a cooperative throttle, not a failure; it does
			// not consume a retry attempt.
			attempt--
			continue

		case resp.StatusCode == http.StatusForbidden:
			resp.Body.Close()
			c.metrics.BanAlert()
			c.logBanAlert(url)
			if attempt < c.maxRetries-1 {
				wait := c.banDelayUnit * time.Duration(attempt+1)
				log.Printf("Origin returned 403, rotating identity and waiting %s", wait)
				if err := sleepCtx(ctx, wait); err != nil {
					return nil, err
				}
				c.rotateIdentity()
				continue
			}
			return nil, ErrBlocked

		case resp.StatusCode < 200 || resp.StatusCode > 299:
			resp.Body.Close()
			lastStatus = resp.StatusCode
			lastErr = nil
			if err := sleepCtx(ctx, c.backoffUnit*(1<<attempt)); err != nil {
				return nil, err
			}
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			// Truncated body counts as a transient transport failure.
			lastErr = err
			if err := sleepCtx(ctx, c.backoffUnit*(1<<attempt)); err != nil {
				return nil, err
			}
			continue
		}

		c.metrics.APICall()
		return body, nil
	}

	if lastStatus != 0 {
		return nil, &UpstreamError{StatusCode: lastStatus}
	}
	return nil, &NetworkError{Err: lastErr}
}

// rotateIdentity swaps in a fresh identity and a fresh connection pool
// so repeated bans don't keep hammering with the same fingerprint.
func (c *Client) rotateIdentity() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.identity = NewIdentity()
	timeout := c.httpClient.Timeout
	c.httpClient.CloseIdleConnections()
	c.httpClient = &http.Client{Timeout: timeout}
}

// logBanAlert appends a timestamped record to the durable ban log.
func (c *Client) logBanAlert(url string) {
	if c.banLogPath == "" {
		return
	}
	f, err := os.OpenFile(c.banLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("Could not open ban alert log: %v", err)
		return
	}
	defer f.Close()
	fmt.Fprintf(f, "%s - 403 Forbidden on %s\n", time.Now().Format("2006-01-02 15:04:05"), url)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
