// Package rest provides the HTTP client shared by the JSON providers
// (XCAP, TransTicket, ArcGIS).
//
// Each provider pages differently (continuation URL, week window, result
// offset) so pagination stays in the provider packages; this client only
// does rate-limited, authenticated GETs and JSON decoding.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Auth describes how a request authenticates. The zero value sends nothing.
type Auth struct {
	Header   string // header name for key auth, e.g. "Authorization"
	Key      string
	Username string // basic auth when set
	Password string
}

// Client is the shared HTTP client for all JSON provider endpoints.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a JSON HTTP client with rate limiting.
func NewClient(requestsPerMinute int, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	rps := float64(requestsPerMinute) / 60.0
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		logger:     logger,
	}
}

// GetJSON performs a rate-limited GET and decodes the JSON body into out.
// params are merged into any query string already present on rawURL.
func (c *Client) GetJSON(ctx context.Context, rawURL string, params url.Values, auth Auth, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	if len(params) > 0 {
		q := u.Query()
		for k, vs := range params {
			q.Del(k)
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	switch {
	case auth.Username != "":
		req.SetBasicAuth(auth.Username, auth.Password)
	case auth.Header != "" && auth.Key != "":
		req.Header.Set(auth.Header, auth.Key)
	}

	c.logger.Debug("provider request", "host", u.Host, "path", u.Path)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request %s: %w", u.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Path: u.Path, Code: resp.StatusCode, Body: truncate(body, 200)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// StatusError is returned for non-200 responses.
type StatusError struct {
	Path string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.Path, e.Code, strings.TrimSpace(e.Body))
}

// truncate returns a truncated string representation for error messages.
func truncate(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}
