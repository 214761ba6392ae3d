// Package client is the outbound HTTP layer shared by registry adapters. Every
// call is form-encoded, carries a browser-like user agent and its own timeout,
// and runs behind a per-jurisdiction rate limiter, retry loop and circuit breaker.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"bobinator/internal/verification/metrics"
	"bobinator/internal/verification/registry/providers"
	"bobinator/pkg/platform/circuit"
)

const (
	DefaultUserAgent  = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"
	DefaultTimeout    = 15 * time.Second
	DefaultMaxRetries = 3
	acceptHTML        = "text/html,application/xhtml+xml"
	maxBodyBytes      = 4 << 20
)

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config describes one registry endpoint.
type Config struct {
	Jurisdiction  providers.Jurisdiction
	BaseURL       string
	Timeout       time.Duration
	MaxRetries    int
	RatePerSecond float64
	RateBurst     int
	UserAgent     string
}

// Client performs registry HTTP calls for a single jurisdiction.
type Client struct {
	jurisdiction providers.Jurisdiction
	baseURL      string
	userAgent    string
	timeout      time.Duration
	maxRetries   int

	http    HTTPDoer
	limiter *rate.Limiter
	breaker *circuit.Breaker
	logger  *slog.Logger
	metrics *metrics.Metrics

	initialBackoff time.Duration
	maxBackoff     time.Duration
}

type Option func(*Client)

func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *Client) {
		if doer != nil {
			c.http = doer
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithBreaker replaces the default breaker (5 failures, 30s cooldown).
func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Client) {
		if b != nil {
			c.breaker = b
		}
	}
}

// WithBackoff overrides the exponential backoff bounds between retries.
func WithBackoff(initial, max time.Duration) Option {
	return func(c *Client) {
		if initial > 0 {
			c.initialBackoff = initial
		}
		if max > 0 {
			c.maxBackoff = max
		}
	}
}

// WithRateLimit replaces the limiter; rate.Inf disables limiting.
func WithRateLimit(l *rate.Limiter) Option {
	return func(c *Client) {
		if l != nil {
			c.limiter = l
		}
	}
}

func New(cfg Config, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 1
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 2
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	c := &Client{
		jurisdiction:   cfg.Jurisdiction,
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:      cfg.UserAgent,
		timeout:        cfg.Timeout,
		maxRetries:     cfg.MaxRetries,
		http:           &http.Client{},
		limiter:        rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RateBurst),
		breaker:        circuit.New(string(cfg.Jurisdiction), circuit.WithFailureThreshold(5), circuit.WithCooldown(30*time.Second)),
		logger:         slog.Default(),
		initialBackoff: 500 * time.Millisecond,
		maxBackoff:     4 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Jurisdiction() providers.Jurisdiction { return c.jurisdiction }

func (c *Client) BaseURL() string { return c.baseURL }

// PostForm POSTs form to path and returns the response body.
func (c *Client) PostForm(ctx context.Context, path string, form url.Values) ([]byte, error) {
	encoded := form.Encode()
	return c.do(ctx, http.MethodPost, path, func() io.Reader { return strings.NewReader(encoded) })
}

// Get fetches pathAndQuery. The query string is sent exactly as given.
func (c *Client) Get(ctx context.Context, pathAndQuery string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, pathAndQuery, nil)
}

// GetOnce fetches pathAndQuery with a single attempt and no retries, for
// best-effort requests whose failure the caller ignores.
func (c *Client) GetOnce(ctx context.Context, pathAndQuery string) ([]byte, error) {
	return c.once(ctx, http.MethodGet, pathAndQuery, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body func() io.Reader) ([]byte, error) {
	var policy backoff.BackOff = backoff.WithMaxRetries(c.newBackoff(), uint64(c.maxRetries))
	policy = backoff.WithContext(policy, ctx)

	attempt := 0
	op := func() ([]byte, error) {
		attempt++
		if attempt > 1 && c.metrics != nil {
			c.metrics.RecordRetry(string(c.jurisdiction))
		}
		data, err := c.once(ctx, method, path, body)
		if err != nil && !providers.IsRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		return data, err
	}

	notify := func(err error, wait time.Duration) {
		c.logger.DebugContext(ctx, "registry request retry",
			"jurisdiction", c.jurisdiction,
			"path", pathOnly(path),
			"attempt", attempt,
			"wait_ms", wait.Milliseconds(),
			"error", err,
		)
	}

	return backoff.RetryNotifyWithData(op, policy, notify)
}

func (c *Client) newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialBackoff
	b.MaxInterval = c.maxBackoff
	b.MaxElapsedTime = 0
	return b
}

func (c *Client) once(ctx context.Context, method, path string, body func() io.Reader) ([]byte, error) {
	if !c.breaker.Allow() {
		return nil, c.permanent(providers.ErrorProviderOutage, "registry circuit open", nil)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, c.permanent(providers.ErrorInternal, "request canceled", err)
		}
		return nil, c.permanent(providers.ErrorTimeout, "rate limiter wait exceeded deadline", err)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = body()
	}
	req, err := http.NewRequestWithContext(attemptCtx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, c.permanent(providers.ErrorInternal, "build request", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", acceptHTML)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.record(c.transportError(ctx, attemptCtx, err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, c.record(c.transportError(ctx, attemptCtx, err))
	}

	return data, c.record(c.statusError(resp.StatusCode))
}

func (c *Client) statusError(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return providers.NewProviderError(providers.ErrorNotFound, c.jurisdiction, "registry returned 404", nil)
	case code == http.StatusTooManyRequests:
		return providers.NewProviderError(providers.ErrorRateLimited, c.jurisdiction, "registry rate limit exceeded", nil)
	case code >= 500:
		return providers.NewProviderError(providers.ErrorProviderOutage, c.jurisdiction, fmt.Sprintf("registry unavailable: %d", code), nil)
	default:
		return providers.NewProviderError(providers.ErrorBadData, c.jurisdiction, fmt.Sprintf("unexpected registry status: %d", code), nil)
	}
}

func (c *Client) transportError(parent, attempt context.Context, err error) error {
	if errors.Is(parent.Err(), context.Canceled) {
		return c.permanent(providers.ErrorInternal, "request canceled", err)
	}
	var netErr net.Error
	if errors.Is(attempt.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return providers.NewProviderError(providers.ErrorTimeout, c.jurisdiction, "request timed out", err)
	}
	return providers.NewProviderError(providers.ErrorProviderOutage, c.jurisdiction, "registry unreachable", err)
}

// record feeds the breaker. Only retryable failures count against it.
func (c *Client) record(err error) error {
	var change circuit.StateChange
	if err != nil && providers.IsRetryable(err) {
		change = c.breaker.RecordFailure()
	} else {
		change = c.breaker.RecordSuccess()
	}

	switch {
	case change.Opened:
		c.logger.Warn("registry_circuit_opened", "jurisdiction", c.jurisdiction)
		if c.metrics != nil {
			c.metrics.SetCircuitOpen(string(c.jurisdiction), true)
		}
	case change.Closed:
		c.logger.Info("registry_circuit_closed", "jurisdiction", c.jurisdiction)
		if c.metrics != nil {
			c.metrics.SetCircuitOpen(string(c.jurisdiction), false)
		}
	}
	return err
}

func (c *Client) permanent(category providers.ErrorCategory, msg string, err error) *providers.ProviderError {
	pe := providers.NewProviderError(category, c.jurisdiction, msg, err)
	pe.Retryable = false
	return pe
}

func pathOnly(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		return p[:i]
	}
	return p
}
