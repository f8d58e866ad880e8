// Package transport sends built requests over a pooled, concurrency-safe
// HTTP client. It does not interpret status codes.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/me/creativeapis/internal/logging"
)

// Default pool settings.
const (
	DefaultMaxIdleConns        = 100
	DefaultMaxIdleConnsPerHost = 16
	DefaultMaxConnsPerHost     = 64
	DefaultIdleConnTimeout     = 90 * time.Second
	DefaultTLSHandshakeTimeout = 10 * time.Second
	DefaultDialTimeout         = 10 * time.Second
)

// Config tunes the connection pool.
type Config struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration
	TLSHandshakeTimeout time.Duration
	DialTimeout         time.Duration

	// TLSConfig overrides the default TLS settings.
	TLSConfig *tls.Config

	// RateLimit caps outgoing requests per second; 0 disables limiting.
	RateLimit float64
	// RateBurst is the limiter burst; defaults to 1.
	RateBurst int
}

// DefaultConfig returns the pool defaults.
func DefaultConfig() Config {
	return Config{
		MaxIdleConns:        DefaultMaxIdleConns,
		MaxIdleConnsPerHost: DefaultMaxIdleConnsPerHost,
		MaxConnsPerHost:     DefaultMaxConnsPerHost,
		IdleConnTimeout:     DefaultIdleConnTimeout,
		TLSHandshakeTimeout: DefaultTLSHandshakeTimeout,
		DialTimeout:         DefaultDialTimeout,
	}
}

// Failure is returned when no complete response was received.
type Failure struct {
	Method string
	URL    string
	Err    error
}

// Error implements the error interface.
func (f *Failure) Error() string {
	return fmt.Sprintf("%s %s: %v", f.Method, f.URL, f.Err)
}

// Unwrap returns the underlying error.
func (f *Failure) Unwrap() error {
	return f.Err
}

// Timeout reports whether the failure was caused by a deadline.
func (f *Failure) Timeout() bool {
	if errors.Is(f.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(f.Err, &ne) && ne.Timeout()
}

// Option configures optional Transport behaviour.
type Option func(*Transport)

// WithRoundTripper replaces the pooled round tripper, e.g. with a test stub.
func WithRoundTripper(rt http.RoundTripper) Option {
	return func(t *Transport) {
		t.base = rt
	}
}

// WithMetrics instruments the transport with the given collectors.
func WithMetrics(m *Metrics) Option {
	return func(t *Transport) {
		t.metrics = m
	}
}

// WithTracing wraps the transport in an OpenTelemetry span per request,
// using the global tracer provider.
func WithTracing() Option {
	return func(t *Transport) {
		t.tracing = true
	}
}

// Transport sends requests. It is safe for concurrent use.
type Transport struct {
	client  *http.Client
	pool    *http.Transport
	base    http.RoundTripper
	limiter *rate.Limiter
	metrics *Metrics
	tracing bool
	logger  *slog.Logger
}

// New creates a Transport.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Transport {
	if logger == nil {
		logger = logging.Discard()
	}

	t := &Transport{
		logger: logger.With("component", "transport"),
	}
	for _, opt := range opts {
		opt(t)
	}

	if t.base == nil {
		t.pool = newPool(cfg)
		t.base = t.pool
	}

	rt := t.base
	if t.metrics != nil {
		rt = t.metrics.instrument(rt)
	}
	if t.tracing {
		rt = otelhttp.NewTransport(rt)
	}

	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	t.client = &http.Client{
		Transport: rt,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
	return t
}

func newPool(cfg Config) *http.Transport {
	d := &net.Dialer{
		Timeout:   orDuration(cfg.DialTimeout, DefaultDialTimeout),
		KeepAlive: 30 * time.Second,
	}
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           d.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          orInt(cfg.MaxIdleConns, DefaultMaxIdleConns),
		MaxIdleConnsPerHost:   orInt(cfg.MaxIdleConnsPerHost, DefaultMaxIdleConnsPerHost),
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       orDuration(cfg.IdleConnTimeout, DefaultIdleConnTimeout),
		TLSHandshakeTimeout:   orDuration(cfg.TLSHandshakeTimeout, DefaultTLSHandshakeTimeout),
		ExpectContinueTimeout: 1 * time.Second,
	}
	if cfg.TLSConfig != nil {
		tr.TLSClientConfig = cfg.TLSConfig.Clone()
	} else {
		tr.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return tr
}

// Send performs the exchange. The request's context bounds the whole call,
// including rate limiter waits. A non-nil response is returned for every
// status code; the caller owns and must close its body.
func (t *Transport) Send(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	target := redact(req)

	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			closeBody(req)
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			return nil, &Failure{Method: req.Method, URL: target, Err: err}
		}
	}

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		t.logger.Debug("request failed", "method", req.Method, "url", target,
			"duration", time.Since(start), "error", err)
		return nil, &Failure{Method: req.Method, URL: target, Err: err}
	}

	t.logger.Debug("response received", "method", req.Method, "url", target,
		"status", resp.StatusCode, "duration", time.Since(start))
	return resp, nil
}

// Close releases idle pooled connections. In-flight requests are not
// interrupted.
func (t *Transport) Close() error {
	if t.pool != nil {
		t.pool.CloseIdleConnections()
	}
	t.client.CloseIdleConnections()
	return nil
}

func closeBody(req *http.Request) {
	if req.Body != nil {
		req.Body.Close()
	}
}

// redact strips user info and the query string from a logged URL.
func redact(req *http.Request) string {
	u := *req.URL
	u.RawQuery = ""
	u.User = nil
	return u.String()
}

func orInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func orDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}
