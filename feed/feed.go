// Package feed polls a subreddit's Atom feed with adaptive backoff and
// decodes pages into entries.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"subreddit-notifier/pkg/stream"
)

const (
	// DefaultPageSize is the source's maximum page size; fetching full
	// pages minimizes round trips.
	DefaultPageSize = 100

	// DefaultBaseDelay is the initial inter-request delay. Shorter
	// cadences get rate-limited by Reddit.
	DefaultBaseDelay = 15 * time.Second

	// DefaultMaxDelay caps the backoff growth on empty or malformed pages.
	DefaultMaxDelay = 120 * time.Second
)

// Config describes one feed stream to poll.
type Config struct {
	HTTPClient *http.Client
	Logger     *slog.Logger
	BaseURL    string // defaults to https://www.reddit.com
	Subreddit  string
	Path       string // "new" for submissions, "comments" for comments
	UserAgent  string
	PageSize   int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// Client fetches feed pages sequentially for a single stream. It owns the
// request cadence: every fetch waits until the previous request timestamp
// plus the current delay, and the delay doubles on empty or malformed
// responses up to the cap. Not safe for concurrent use; each stream runs
// exactly one client.
type Client struct {
	httpClient  *http.Client
	logger      *slog.Logger
	lastRequest time.Time
	baseURL     string
	subreddit   string
	path        string
	userAgent   string
	pageSize    int
	baseDelay   time.Duration
	maxDelay    time.Duration
	delay       time.Duration
}

// New creates a feed client for one stream.
func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.reddit.com"
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}
	return &Client{
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
		baseURL:    cfg.BaseURL,
		subreddit:  cfg.Subreddit,
		path:       cfg.Path,
		userAgent:  cfg.UserAgent,
		pageSize:   cfg.PageSize,
		baseDelay:  cfg.BaseDelay,
		maxDelay:   cfg.MaxDelay,
		delay:      cfg.BaseDelay,
	}
}

// FetchPage retrieves the page of entries published before the given full
// ID (newest-first, the source's order). An empty before fetches the head
// of the feed. Transport failures, malformed payloads, and empty pages are
// absorbed into the backoff and returned as an empty page; the only error
// is context cancellation.
func (c *Client) FetchPage(ctx context.Context, before string) ([]stream.Entry, error) {
	return c.fetch(ctx, before, c.pageSize)
}

// Newest blocks until the single most recent entry of the stream can be
// retrieved, riding the same backoff as regular pages. Used to establish a
// cursor baseline when none is persisted.
func (c *Client) Newest(ctx context.Context) (stream.Entry, error) {
	for {
		entries, err := c.fetch(ctx, "", 1)
		if err != nil {
			return stream.Entry{}, err
		}
		if len(entries) > 0 {
			return entries[0], nil
		}
	}
}

func (c *Client) fetch(ctx context.Context, before string, limit int) ([]stream.Entry, error) {
	if err := c.pace(ctx); err != nil {
		return nil, err
	}

	feedURL := c.feedURL(before, limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.lastRequest = time.Now()

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.backOff("request failed", "error", err)
		return nil, nil
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("Failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		c.backOff("non-OK status", "status_code", resp.StatusCode)
		return nil, nil
	}

	entries, err := DecodeAtom(resp.Body)
	if err != nil {
		// An HTML error page or truncated document; the source heals on
		// its own, so this is the empty case for backoff purposes.
		c.backOff("malformed payload", "error", err)
		return nil, nil
	}

	if len(entries) == 0 {
		c.backOff("empty page", "before", before)
		return entries, nil
	}

	c.delay = c.baseDelay
	c.logger.Debug("Feed page fetched",
		"subreddit", c.subreddit,
		"path", c.path,
		"entries", len(entries),
		"before", before,
		"duration_ms", time.Since(start).Milliseconds())
	return entries, nil
}

// pace waits until lastRequest + delay, never a blind sleep of the full
// interval, so time spent processing between requests counts against the
// cadence. Interruptible by context cancellation.
func (c *Client) pace(ctx context.Context) error {
	if c.lastRequest.IsZero() {
		return nil
	}
	wait := time.Until(c.lastRequest.Add(c.delay))
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) backOff(reason string, args ...any) {
	c.delay *= 2
	if c.delay > c.maxDelay {
		c.delay = c.maxDelay
	}
	c.logger.Info("Feed backoff increased",
		append([]any{"reason", reason, "subreddit", c.subreddit, "path", c.path, "next_delay", c.delay.String()}, args...)...)
}

func (c *Client) feedURL(before string, limit int) string {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	if before != "" {
		query.Set("before", before)
	}
	return fmt.Sprintf("%s/r/%s/%s/.rss?%s", c.baseURL, c.subreddit, c.path, query.Encode())
}
