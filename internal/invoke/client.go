// Package invoke calls external workers synchronously over HTTP. Each
// endpoint gets its own circuit breaker so a worker that keeps failing is
// reported immediately instead of tying up request handlers.
package invoke

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// ErrUnavailable is returned while an endpoint's breaker is open.
var ErrUnavailable = errors.New("worker endpoint temporarily unavailable")

// StatusError is a non-2xx response from a worker.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("worker %s responded %d: %s", e.URL, e.StatusCode, e.Body)
}

// Client posts JSON payloads to worker endpoints. It never retries.
type Client struct {
	httpClient *http.Client
	apiKey     string

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewClient returns a Client whose requests time out after timeout.
func NewClient(apiKey string, timeout time.Duration) *Client {
	return NewClientWithHTTP(&http.Client{Timeout: timeout}, apiKey)
}

// NewClientWithHTTP allows injecting the HTTP client (used in tests).
func NewClientWithHTTP(httpClient *http.Client, apiKey string) *Client {
	return &Client{
		httpClient: httpClient,
		apiKey:     apiKey,
		breakers:   make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (c *Client) breaker(url string) *gobreaker.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()

	cb, ok := c.breakers[url]
	if !ok {
		cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        url,
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 5 && failureRatio >= 0.6
			},
		})
		c.breakers[url] = cb
	}
	return cb
}

// Invoke posts payload as JSON to url. When out is non-nil the response body
// is decoded into it. Only 200 and 202 count as success.
func (c *Client) Invoke(ctx context.Context, url string, payload, out any) error {
	if url == "" {
		return errors.New("worker endpoint is not configured")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	_, err = c.breaker(url).Execute(func() (interface{}, error) {
		return nil, c.post(ctx, url, body, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s", ErrUnavailable, url)
	}
	return err
}

func (c *Client) post(ctx context.Context, url string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call worker: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read worker response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return &StatusError{URL: url, StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(respBody))}
	}

	if out != nil && len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode worker response: %w", err)
		}
	}
	return nil
}
