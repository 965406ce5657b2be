package storefront

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Third-party listing pages serve different markup to obvious bots;
// a desktop UA keeps the best-effort scraping working.
const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// maxBodyBytes bounds how much of a listing page is read; icon tags
// and content markers sit well within the first megabytes.
const maxBodyBytes = 4 << 20

// Client is a self-rate-limited HTTP client shared by verification
// and icon resolution. Requests are spaced at least minInterval apart
// regardless of which component issues them.
type Client struct {
	http        *http.Client
	userAgent   string
	minInterval time.Duration

	mu   sync.Mutex
	last time.Time
}

func NewClient(timeout, minInterval time.Duration) *Client {
	return &Client{
		http:        &http.Client{Timeout: timeout},
		userAgent:   defaultUserAgent,
		minInterval: minInterval,
	}
}

// Response is the portion of an HTTP exchange the callers care about.
type Response struct {
	StatusCode int
	Body       []byte
	FinalURL   string
}

// Get fetches url, honoring the client-wide minimum request spacing.
func (c *Client) Get(ctx context.Context, url string) (Response, error) {
	if err := c.throttle(ctx); err != nil {
		return Response{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := c.http.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Response{}, fmt.Errorf("read response body: %w", err)
	}

	final := url
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}
	return Response{StatusCode: resp.StatusCode, Body: body, FinalURL: final}, nil
}

func (c *Client) throttle(ctx context.Context) error {
	c.mu.Lock()
	wait := c.minInterval - time.Since(c.last)
	if wait < 0 {
		wait = 0
	}
	c.last = time.Now().Add(wait)
	c.mu.Unlock()

	if wait == 0 {
		return nil
	}
	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
