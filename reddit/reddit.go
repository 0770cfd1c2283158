// Package reddit is a minimal authenticated client for the Reddit JSON
// API: posting replies, managing the bot inbox, and sending messages.
package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"golang.org/x/time/rate"
)

// The API allows 60 requests per minute for script-type apps.
const requestsPerMinute = 60

// APIError indicates a non-2xx response from the API. Publish failures
// carry this type so callers can decide not to advance past the item.
type APIError struct {
	Endpoint   string
	StatusCode int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("reddit API %s returned HTTP %d", e.Endpoint, e.StatusCode)
}

// IsAPIError checks if an error is an APIError.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

// Credentials holds a script-app login.
type Credentials struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	UserAgent    string
}

// Config wires a client. BaseURL and TokenURL default to the public API
// and are overridable for tests.
type Config struct {
	HTTPClient  *http.Client
	Logger      *slog.Logger
	Credentials Credentials
	BaseURL     string
	TokenURL    string
}

// Message is one inbox item.
type Message struct {
	FullID     string `json:"name"`
	Author     string `json:"author"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
	WasComment bool   `json:"was_comment"`
}

// Client issues rate-limited, retried calls against the API. A single
// client is shared per process.
type Client struct {
	httpClient  *http.Client
	logger      *slog.Logger
	limiter     *rate.Limiter
	creds       Credentials
	baseURL     string
	tokenURL    string
	token       string
	tokenExpiry time.Time
}

// New creates an API client.
func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://oauth.reddit.com"
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = "https://www.reddit.com/api/v1/access_token"
	}
	return &Client{
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
		limiter:    rate.NewLimiter(rate.Limit(requestsPerMinute)/60, 1),
		creds:      cfg.Credentials,
		baseURL:    cfg.BaseURL,
		tokenURL:   cfg.TokenURL,
	}
}

// Reply posts a markdown comment under the given parent (submission or
// comment full ID) and returns the created comment's full ID.
func (c *Client) Reply(ctx context.Context, parentFullID, body string) (string, error) {
	form := url.Values{}
	form.Set("api_type", "json")
	form.Set("thing_id", parentFullID)
	form.Set("text", body)

	raw, err := c.post(ctx, "/api/comment", form)
	if err != nil {
		return "", err
	}

	var resp struct {
		JSON struct {
			Errors [][]any `json:"errors"`
			Data   struct {
				Things []struct {
					Data struct {
						Name string `json:"name"`
					} `json:"data"`
				} `json:"things"`
			} `json:"data"`
		} `json:"json"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("decode comment response: %w", err)
	}
	if len(resp.JSON.Errors) > 0 {
		return "", fmt.Errorf("comment rejected: %v", resp.JSON.Errors)
	}
	if len(resp.JSON.Data.Things) == 0 {
		return "", errors.New("comment response missing created thing")
	}

	name := resp.JSON.Data.Things[0].Data.Name
	c.logger.Info("Reply posted", "parent", parentFullID, "comment", name)
	return name, nil
}

// DistinguishSticky marks a bot comment as a stickied moderator comment.
// Requires moderator permissions on the subreddit.
func (c *Client) DistinguishSticky(ctx context.Context, commentFullID string) error {
	form := url.Values{}
	form.Set("api_type", "json")
	form.Set("id", commentFullID)
	form.Set("how", "yes")
	form.Set("sticky", "true")

	if _, err := c.post(ctx, "/api/distinguish", form); err != nil {
		return err
	}
	c.logger.Info("Reply stickied", "comment", commentFullID)
	return nil
}

// Inbox lists the bot's unread inbox items, oldest last (the API's own
// order).
func (c *Client) Inbox(ctx context.Context) ([]Message, error) {
	raw, err := c.get(ctx, "/message/unread?limit=100")
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data struct {
			Children []struct {
				Data Message `json:"data"`
			} `json:"children"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode inbox response: %w", err)
	}

	messages := make([]Message, 0, len(resp.Data.Children))
	for _, child := range resp.Data.Children {
		messages = append(messages, child.Data)
	}
	return messages, nil
}

// MarkRead acknowledges inbox items by full ID.
func (c *Client) MarkRead(ctx context.Context, fullIDs []string) error {
	if len(fullIDs) == 0 {
		return nil
	}
	form := url.Values{}
	form.Set("id", strings.Join(fullIDs, ","))

	if _, err := c.post(ctx, "/api/read_message", form); err != nil {
		return err
	}
	c.logger.Debug("Inbox items marked read", "count", len(fullIDs))
	return nil
}

// ComposeMessage sends a private message.
func (c *Client) ComposeMessage(ctx context.Context, to, subject, body string) error {
	form := url.Values{}
	form.Set("api_type", "json")
	form.Set("to", to)
	form.Set("subject", subject)
	form.Set("text", body)

	if _, err := c.post(ctx, "/api/compose", form); err != nil {
		return err
	}
	c.logger.Info("Message sent", "to", to, "subject", subject)
	return nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *Client) post(ctx context.Context, path string, form url.Values) ([]byte, error) {
	return c.do(ctx, http.MethodPost, path, form)
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values) ([]byte, error) {
	var body []byte

	err := retry.Do(
		func() error {
			if err := c.ensureToken(ctx); err != nil {
				return err
			}
			if err := c.limiter.Wait(ctx); err != nil {
				return retry.Unrecoverable(err)
			}

			var reader io.Reader
			if form != nil {
				reader = strings.NewReader(form.Encode())
			}
			req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
			}
			req.Header.Set("User-Agent", c.creds.UserAgent)
			req.Header.Set("Authorization", "Bearer "+c.token)
			if form != nil {
				req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			}

			start := time.Now()
			resp, err := c.httpClient.Do(req)
			if err != nil {
				c.logger.Warn("API request failed, will retry", "endpoint", path, "error", err)
				return err
			}
			defer func() {
				if closeErr := resp.Body.Close(); closeErr != nil {
					c.logger.Warn("Failed to close response body", "error", closeErr)
				}
			}()

			c.logger.Debug("API request completed",
				"method", method,
				"endpoint", path,
				"status_code", resp.StatusCode,
				"duration_ms", time.Since(start).Milliseconds())

			if resp.StatusCode == http.StatusUnauthorized {
				// Token expired early; force a refresh on the next attempt.
				c.token = ""
				return &APIError{Endpoint: path, StatusCode: resp.StatusCode}
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				apiErr := &APIError{Endpoint: path, StatusCode: resp.StatusCode}
				// Client errors other than rate limiting will not heal.
				if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
					return retry.Unrecoverable(apiErr)
				}
				return apiErr
			}

			body, err = io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("read response: %w", err)
			}
			return nil
		},
		retry.Attempts(5),
		retry.Delay(time.Second),
		retry.MaxDelay(time.Minute),
		retry.MaxJitter(5*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Info("Retrying API call after error", "attempt", n, "endpoint", path, "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%s after retries: %w", path, err)
	}
	return body, nil
}

// ensureToken fetches or refreshes the OAuth token via the password grant.
func (c *Client) ensureToken(ctx context.Context) error {
	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return nil
	}

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", c.creds.Username)
	form.Set("password", c.creds.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create token request: %w", err)
	}
	req.SetBasicAuth(c.creds.ClientID, c.creds.ClientSecret)
	req.Header.Set("User-Agent", c.creds.UserAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("token request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("Failed to close token response body", "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return &APIError{Endpoint: "/api/v1/access_token", StatusCode: resp.StatusCode}
	}

	var token struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return fmt.Errorf("decode token response: %w", err)
	}
	if token.AccessToken == "" {
		return errors.New("token response missing access_token")
	}

	c.token = token.AccessToken
	// Refresh a minute early to avoid racing the expiry.
	c.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn)*time.Second - time.Minute)
	c.logger.Debug("API token refreshed", "expires_in", token.ExpiresIn)
	return nil
}
