package mesh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

const (
	// DefaultFetchTimeout is the default HTTP request timeout for surface fetches.
	DefaultFetchTimeout = 30 * time.Second

	// DefaultMaxRetries is the default number of attempts per fetch.
	DefaultMaxRetries = 3

	defaultBaseBackoff = 500 * time.Millisecond

	// maxRetryAfter caps a server-requested delay.
	maxRetryAfter = 30 * time.Second

	// maxSurfaceBytes limits the downloaded surface to 50 MB.
	maxSurfaceBytes = 50 << 20
)

// FetchOption configures FetchSurfaceFromAPI behavior.
type FetchOption func(*fetchConfig)

type fetchConfig struct {
	timeout     time.Duration
	maxRetries  int
	baseBackoff time.Duration
	client      *http.Client
}

func defaultFetchConfig() fetchConfig {
	return fetchConfig{
		timeout:     DefaultFetchTimeout,
		maxRetries:  DefaultMaxRetries,
		baseBackoff: defaultBaseBackoff,
	}
}

// WithTimeout sets the HTTP request timeout.
func WithTimeout(d time.Duration) FetchOption {
	return func(c *fetchConfig) {
		c.timeout = d
	}
}

// WithMaxRetries sets the number of attempts. Values below 1 mean one attempt.
func WithMaxRetries(n int) FetchOption {
	return func(c *fetchConfig) {
		c.maxRetries = n
	}
}

// WithBaseBackoff sets the first retry delay; later delays double.
func WithBaseBackoff(d time.Duration) FetchOption {
	return func(c *fetchConfig) {
		c.baseBackoff = d
	}
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) FetchOption {
	return func(c *fetchConfig) {
		c.client = client
	}
}

// StatusError is a non-200 answer from the surface API.
type StatusError struct {
	URL        string
	Code       int
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d %s", e.URL, e.Code, http.StatusText(e.Code))
}

// Temporary reports whether the same request may succeed later:
// server errors, 408 and 429.
func (e *StatusError) Temporary() bool {
	return e.Code >= 500 || e.Code == http.StatusRequestTimeout || e.Code == http.StatusTooManyRequests
}

// FetchSurfaceFromAPI downloads and parses the surface mesh served at apiURL.
// Network failures and temporary statuses are retried with exponential
// backoff. Client errors and meshes failing with ErrInvalidMesh are not.
func FetchSurfaceFromAPI(apiURL string, opts ...FetchOption) (*Surface, error) {
	return FetchSurfaceFromAPIWithContext(context.Background(), apiURL, opts...)
}

// FetchSurfaceFromAPIWithContext is like FetchSurfaceFromAPI but accepts a context for cancellation.
func FetchSurfaceFromAPIWithContext(ctx context.Context, apiURL string, opts ...FetchOption) (*Surface, error) {
	if apiURL == "" {
		return nil, fmt.Errorf("fetch surface: API URL is empty")
	}

	cfg := defaultFetchConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	f := surfaceFetcher{url: apiURL, client: cfg.client}
	if f.client == nil {
		f.client = &http.Client{Timeout: cfg.timeout}
	}
	attempts := max(cfg.maxRetries, 1)

	for attempt := 1; ; attempt++ {
		s, err := f.fetch(ctx)
		if err == nil {
			return s, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("fetch surface: %w", ctx.Err())
		}
		if !retryable(err) {
			return nil, fmt.Errorf("fetch surface: %w", err)
		}
		if attempt == attempts {
			return nil, fmt.Errorf("fetch surface: all %d attempts failed: %w", attempts, err)
		}

		wait := cfg.baseBackoff << (attempt - 1)
		var se *StatusError
		if errors.As(err, &se) && se.RetryAfter > wait {
			wait = se.RetryAfter
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("fetch surface: %w", ctx.Err())
		case <-time.After(wait):
		}
	}
}

// retryable reports whether a failed fetch is worth repeating.
func retryable(err error) bool {
	if errors.Is(err, ErrInvalidMesh) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return true
}

type surfaceFetcher struct {
	url    string
	client *http.Client
}

// fetch performs one GET and parses the body. A body that does not parse
// as a surface is reported as ErrInvalidMesh.
func (f surfaceFetcher) fetch(ctx context.Context) (*Surface, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", f.url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{
			URL:        f.url,
			Code:       resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSurfaceBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", f.url, err)
	}
	if len(body) > maxSurfaceBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrInvalidMesh, f.url, maxSurfaceBytes)
	}

	s, err := ParseSurfaceJSON(body)
	if err != nil {
		if errors.Is(err, ErrInvalidMesh) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidMesh, err)
	}
	return s, nil
}

// parseRetryAfter reads a Retry-After header given in seconds. HTTP dates
// and unparseable values yield zero.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return min(time.Duration(secs)*time.Second, maxRetryAfter)
}
