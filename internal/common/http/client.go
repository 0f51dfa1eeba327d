// internal/common/http/client.go
package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client retries transport errors, 429 and 5xx responses with exponential backoff.
type Client struct {
	httpClient   *http.Client
	maxRetries   int
	initialDelay time.Duration
}

type Option func(*Client)

func WithRetries(maxRetries int, initialDelay time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.initialDelay = initialDelay
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func NewClient(timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		httpClient:   &http.Client{Timeout: timeout},
		maxRetries:   2,
		initialDelay: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get issues a GET, retrying retryable failures. The caller closes the returned body.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	var (
		resp  *http.Response
		err   error
		delay = c.initialDelay
	)
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		var req *http.Request
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err = c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		if !retryableStatus(resp.StatusCode) {
			return resp, nil
		}
		if attempt < c.maxRetries {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
	}
	if err != nil {
		return nil, fmt.Errorf("GET failed after %d attempts: %w", c.maxRetries+1, err)
	}
	return resp, nil
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}
