// Package fetch performs upstream GET requests that tolerate rate limiting
// and transient network failures.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/vietddude/deliverycal/internal/metrics"
)

// DefaultAPIKeyParam is the query parameter carrying the API key.
const DefaultAPIKeyParam = "apikey"

// Request describes a single upstream GET.
type Request struct {
	// Name identifies the endpoint in logs and metrics (e.g. "postalcode")
	Name   string
	URL    string
	Params url.Values
}

// Payload is a successful response body. Exactly one of JSON and Raw is set:
// upstream occasionally answers 200 with a non-JSON error page.
type Payload struct {
	JSON json.RawMessage
	Raw  string
}

// IsJSON reports whether the body parsed as JSON.
func (p *Payload) IsJSON() bool {
	return p.JSON != nil
}

// Config holds fetcher settings.
type Config struct {
	APIKey      string
	APIKeyParam string
	UserAgent   string
	Timeout     time.Duration
	RateLimit   RateLimitPolicy
	Network     NetworkPolicy
}

// Fetcher issues GET requests with two independent retry policies: one for
// HTTP 429 (honouring Retry-After) and one for network errors. Any other
// non-success status fails immediately.
type Fetcher struct {
	cfg        Config
	httpClient *http.Client
	sleep      func(ctx context.Context, d time.Duration) error
	now        func() time.Time
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		f.httpClient = c
	}
}

// WithSleeper replaces the function used to wait out rate limiting.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(f *Fetcher) {
		f.sleep = sleep
	}
}

// New creates a Fetcher.
func New(cfg Config, opts ...Option) *Fetcher {
	if cfg.APIKeyParam == "" {
		cfg.APIKeyParam = DefaultAPIKeyParam
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.RateLimit = cfg.RateLimit.normalize()
	cfg.Network = cfg.Network.normalize()

	f := &Fetcher{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		sleep: sleepContext,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// URL returns the full request URL including the API key.
func (f *Fetcher) URL(req Request) (string, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	q := u.Query()
	for k, vs := range req.Params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	if f.cfg.APIKey != "" && q.Get(f.cfg.APIKeyParam) == "" {
		q.Set(f.cfg.APIKeyParam, f.cfg.APIKey)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Fetch performs the request and returns its body.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (*Payload, error) {
	endpoint, err := f.URL(req)
	if err != nil {
		return nil, &FetchError{Endpoint: req.Name, Err: err}
	}

	for rateLimited := 0; ; {
		resp, err := f.getWithRetry(ctx, req.Name, endpoint)
		if err != nil {
			return nil, err
		}

		// Rate limit detection
		if resp.status == http.StatusTooManyRequests {
			rateLimited++
			metrics.FetchRateLimitedTotal.WithLabelValues(req.Name).Inc()
			if rateLimited >= f.cfg.RateLimit.MaxAttempts {
				return nil, &FetchError{
					Endpoint:   req.Name,
					StatusCode: resp.status,
					Body:       string(resp.body),
					Attempts:   rateLimited,
				}
			}

			wait := f.cfg.RateLimit.RetryAfter(resp.header.Get("Retry-After"), f.now())
			slog.Warn("Rate limited, backing off",
				"endpoint", req.Name,
				"retry_after", wait,
				"attempt", rateLimited,
				"max_attempts", f.cfg.RateLimit.MaxAttempts)
			if err := f.sleep(ctx, wait); err != nil {
				return nil, &FetchError{Endpoint: req.Name, Attempts: rateLimited, Err: err}
			}
			continue
		}

		if resp.status < 200 || resp.status > 299 {
			metrics.FetchRequestsTotal.WithLabelValues(req.Name, "http_error").Inc()
			return nil, &FetchError{
				Endpoint:   req.Name,
				StatusCode: resp.status,
				Body:       string(resp.body),
				Attempts:   1,
			}
		}

		metrics.FetchRequestsTotal.WithLabelValues(req.Name, "ok").Inc()
		return parsePayload(resp.body), nil
	}
}

type response struct {
	status int
	header http.Header
	body   []byte
}

// getWithRetry performs one logical GET, retrying transport failures
// according to the network policy.
func (f *Fetcher) getWithRetry(ctx context.Context, name, endpoint string) (*response, error) {
	policy := f.cfg.Network
	backoff := retry.WithMaxRetries(uint64(policy.MaxAttempts-1), retry.NewConstant(policy.Wait))

	var (
		resp     *response
		attempts int
	)
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		r, err := f.get(ctx, name, endpoint)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			slog.Error("HTTP request failed",
				"endpoint", name, "attempt", attempts, "max_attempts", policy.MaxAttempts, "error", err)
			return retry.RetryableError(err)
		}
		resp = r
		return nil
	})
	if err != nil {
		metrics.FetchRequestsTotal.WithLabelValues(name, "network_error").Inc()
		return nil, &FetchError{Endpoint: name, Attempts: attempts, Err: err}
	}
	return resp, nil
}

func (f *Fetcher) get(ctx context.Context, name, endpoint string) (*response, error) {
	start := time.Now()
	defer func() {
		metrics.FetchLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}

	slog.Debug("Calling upstream", "endpoint", name)
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return &response{status: resp.StatusCode, header: resp.Header, body: body}, nil
}

func parsePayload(body []byte) *Payload {
	if json.Valid(body) {
		return &Payload{JSON: json.RawMessage(body)}
	}
	return &Payload{Raw: string(body)}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

