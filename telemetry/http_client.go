package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"
)

const (
	// DefaultFetchTimeout is the default HTTP request timeout for a telemetry fetch.
	// It stays below the default poll interval so a hung request does not outlive its cycle.
	DefaultFetchTimeout = 1500 * time.Millisecond

	// DefaultMaxRetries is the default number of attempts per fetch.
	// The poller itself retries on the next tick.
	DefaultMaxRetries = 1

	// defaultBaseBackoff is the base delay for exponential backoff.
	defaultBaseBackoff = 100 * time.Millisecond

	// maxResponseBytes limits the response body to 1 MiB.
	maxResponseBytes = 1 << 20
)

// ErrNoEndpoint is returned when no endpoint URL is configured
var ErrNoEndpoint = errors.New("endpoint URL is empty")

// StatusError is a non-success HTTP response from the telemetry endpoint
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP GET %s: status %d", e.URL, e.StatusCode)
}

// FetchOption configures FetchEnvelope behavior.
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

// WithMaxRetries sets the maximum number of attempts.
func WithMaxRetries(n int) FetchOption {
	return func(c *fetchConfig) {
		c.maxRetries = n
	}
}

// WithBaseBackoff sets the base delay for exponential backoff between retries.
func WithBaseBackoff(d time.Duration) FetchOption {
	return func(c *fetchConfig) {
		c.baseBackoff = d
	}
}

// WithHTTPClient overrides the default HTTP client (useful for testing).
func WithHTTPClient(client *http.Client) FetchOption {
	return func(c *fetchConfig) {
		c.client = client
	}
}

// FetchEnvelope performs one GET against the telemetry endpoint and decodes
// the {data, rssi} envelope. Transport errors and non-2xx statuses are
// retried up to the configured attempt count; a body that is not a JSON
// object is not.
func FetchEnvelope(ctx context.Context, endpointURL string, opts ...FetchOption) (*Envelope, error) {
	if endpointURL == "" {
		return nil, fmt.Errorf("fetch telemetry: %w", ErrNoEndpoint)
	}

	cfg := defaultFetchConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.maxRetries < 1 {
		cfg.maxRetries = 1
	}

	client := cfg.client
	if client == nil {
		client = &http.Client{Timeout: cfg.timeout}
	}

	var lastErr error
	for attempt := 0; attempt < cfg.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := cfg.baseBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("fetch telemetry: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}

		body, err := doFetch(ctx, client, endpointURL)
		if err != nil {
			lastErr = err
			continue
		}

		env, err := ParseEnvelope(body)
		if err != nil {
			// Malformed payloads are not transient; do not retry.
			return nil, fmt.Errorf("fetch telemetry: %w", err)
		}
		return env, nil
	}

	if cfg.maxRetries == 1 {
		return nil, fmt.Errorf("fetch telemetry: %w", lastErr)
	}
	return nil, fmt.Errorf("fetch telemetry: all %d attempts failed: %w", cfg.maxRetries, lastErr)
}

// ParseEnvelope decodes a response body into an Envelope
func ParseEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	return &env, nil
}

// doFetch performs a single HTTP GET and returns the response body bytes.
func doFetch(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP GET %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", url, err)
	}

	return body, nil
}
