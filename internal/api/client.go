// Package api implements the JSON fetch client for the uptime service.
//
// Reads are retried on any transport or parse failure at a fixed delay, a
// bounded number of times, then give up leaving the last error visible for
// the staleness indicator. Writes are never retried.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/upvigil/upvigil/internal/models"
)

// AlertFunc receives user-facing alert strings attached to otherwise
// successful responses.
type AlertFunc func(string)

// Client talks to one service instance.
type Client struct {
	base       string
	http       *http.Client
	log        *zap.Logger
	retries    int
	retryDelay time.Duration
	alert      AlertFunc

	mu       sync.Mutex
	lastErr  string
	lastErrT time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithRetryPolicy overrides the read retry count and delay.
func WithRetryPolicy(retries int, delay time.Duration) Option {
	return func(c *Client) {
		c.retries = retries
		c.retryDelay = delay
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithAlertFunc sets the sink for user-facing alert strings.
func WithAlertFunc(f AlertFunc) Option {
	return func(c *Client) { c.alert = f }
}

// New creates a Client for the given base URL.
func New(base string, log *zap.Logger, opts ...Option) *Client {
	c := &Client{
		base:       strings.TrimRight(base, "/"),
		http:       &http.Client{Timeout: 15 * time.Second},
		log:        log,
		retries:    30,
		retryDelay: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LastError returns the most recent request failure, or "" after a
// successful request. It backs the dashboard's error indicator.
func (c *Client) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Client) setLastError(msg string) {
	c.mu.Lock()
	c.lastErr = msg
	c.lastErrT = time.Now()
	c.mu.Unlock()
}

// Get fetches path and decodes the JSON object into out, retrying per the
// read policy. The final error is returned when all attempts fail.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}

		err := c.do(ctx, http.MethodGet, path, nil, out)
		if err == nil {
			c.setLastError("")
			return nil
		}
		lastErr = err
		c.setLastError(err.Error())
		c.log.Warn("read request failed",
			zap.String("path", path),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	return lastErr
}

// Post sends body as JSON to path and decodes the response into out.
// Writes are not retried.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	err := c.do(ctx, http.MethodPost, path, body, out)
	if err != nil {
		c.setLastError(err.Error())
		return err
	}
	c.setLastError("")
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-store")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", path, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: status %d: %s", path, res.StatusCode, truncate(raw, 200))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	// Alerts ride on successful responses.
	var env models.Envelope
	if json.Unmarshal(raw, &env) == nil && env.Alert != "" && c.alert != nil {
		c.alert(env.Alert)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
