// Package fetch implements the §4.D HTTP fetcher: authenticated,
// retrying GETs with range/resume, GitHub credential discovery, and
// exponential backoff with jitter.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"
)

const (
	maxRedirects = 10
	maxAttempts  = 5
	perAttemptTimeout = 5 * time.Minute
)

// UserAgent is attached to every outbound request.
var UserAgent = "rv/dev"

// Client wraps http.Client with the fetcher's retry/auth/range policy.
type Client struct {
	HTTP *http.Client
}

// New constructs a Client with the spec's redirect cap and per-attempt
// timeout baked in. The caller's ctx (passed to Get) governs overall
// cancellation; perAttemptTimeout bounds a single HTTP round trip.
func New() *Client {
	return &Client{
		HTTP: &http.Client{
			Timeout: perAttemptTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("fetch: stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
	}
}

// Result describes the outcome of a Get.
type Result struct {
	StatusCode int
	BytesRead  int64
	Resumed    bool
	Attempts   int
}

// githubHosts are the only hosts eligible for GITHUB_TOKEN/GH_TOKEN
// attachment; tokens are never sent to any other host.
var githubHosts = map[string]bool{
	"github.com":     true,
	"api.github.com": true,
}

// githubToken resolves GITHUB_TOKEN, falling back to GH_TOKEN.
func githubToken() (string, bool) {
	if t := os.Getenv("GITHUB_TOKEN"); t != "" {
		return t, true
	}
	if t := os.Getenv("GH_TOKEN"); t != "" {
		return t, true
	}
	return "", false
}

// Get fetches url into destination (truncating any existing file
// unless resuming), retrying transient failures with exponential
// backoff and jitter, honoring Retry-After, and resuming via Range
// requests when destination already has bytes on disk.
func (c *Client) Get(ctx context.Context, rawURL string, headers map[string]string, destination string) (Result, error) {
	var result Result

	var startOffset int64
	if info, err := os.Stat(destination); err == nil {
		startOffset = info.Size()
	}

	flags := os.O_CREATE | os.O_WRONLY
	if startOffset > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result.Attempts = attempt

		f, err := os.OpenFile(destination, flags, 0o644)
		if err != nil {
			return result, fmt.Errorf("fetch: open destination: %w", err)
		}

		n, status, retryAfter, err := c.attempt(ctx, rawURL, headers, f, startOffset)
		f.Close()

		result.StatusCode = status
		result.BytesRead += n
		if startOffset > 0 {
			result.Resumed = true
		}

		if err == nil {
			return result, nil
		}

		if status == http.StatusRequestedRangeNotSatisfiable {
			os.Remove(destination)
			startOffset = 0
			flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
			continue
		}

		if !retryable(status, err) || attempt == maxAttempts {
			return result, err
		}

		wait := backoff(attempt)
		if retryAfter > 0 {
			wait = retryAfter
		}
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(wait):
		}

		// Successful partial writes extend startOffset for the next
		// attempt's Range request.
		if info, statErr := os.Stat(destination); statErr == nil {
			startOffset = info.Size()
			if startOffset > 0 {
				flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
			}
		}
	}

	return result, fmt.Errorf("fetch: exhausted %d attempts for %s", maxAttempts, rawURL)
}

func (c *Client) attempt(ctx context.Context, rawURL string, headers map[string]string, dst io.Writer, offset int64) (int64, int, time.Duration, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, perAttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("fetch: build request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	if host, ok := parseHost(rawURL); ok && githubHosts[host] {
		if token, present := githubToken(); present {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusRequestedRangeNotSatisfiable {
		return 0, resp.StatusCode, 0, fmt.Errorf("fetch: range not satisfiable for %s", rawURL)
	}

	retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))

	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK {
		return 0, resp.StatusCode, retryAfter, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	n, err := io.Copy(dst, resp.Body)
	if err != nil {
		return n, resp.StatusCode, retryAfter, fmt.Errorf("fetch: copy body: %w", err)
	}
	return n, resp.StatusCode, retryAfter, nil
}

func parseHost(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	return u.Hostname(), true
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		return time.Until(t)
	}
	return 0
}

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch: HTTP %d from %s", e.StatusCode, e.URL)
}

func retryable(status int, err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		default:
			return statusErr.StatusCode >= 500
		}
	}
	// connection-level errors (no status) are retryable
	if status == 0 {
		return true
	}
	return false
}

func backoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt-1)) * 200 * time.Millisecond
	jitter := time.Duration(rand.Int63n(int64(base) + 1))
	return base + jitter
}

// IsGitHubHost reports whether a URL's host is eligible for GitHub
// token attachment, exposed for debug logging call sites.
func IsGitHubHost(rawURL string) bool {
	host, ok := parseHost(rawURL)
	return ok && githubHosts[host]
}

// AuthenticatedDebugLine renders a debug-level line describing whether
// a request to rawURL would carry GitHub credentials, without ever
// including the token value itself.
func AuthenticatedDebugLine(rawURL string) string {
	if !IsGitHubHost(rawURL) {
		return fmt.Sprintf("fetch: %s unauthenticated (non-GitHub host)", rawURL)
	}
	if _, ok := githubToken(); ok {
		return fmt.Sprintf("fetch: %s authenticated via GITHUB_TOKEN/GH_TOKEN", rawURL)
	}
	return fmt.Sprintf("fetch: %s unauthenticated (no token set)", rawURL)
}
