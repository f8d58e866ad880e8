package picsart

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/me/creativeapis/internal/logging"
	"github.com/me/creativeapis/internal/request"
	"github.com/me/creativeapis/internal/response"
	"github.com/me/creativeapis/internal/transport"
	"github.com/me/creativeapis/pkg/apierr"
	"github.com/prometheus/client_golang/prometheus"
)

// Option configures optional Client dependencies.
type Option func(*options)

type options struct {
	roundTripper http.RoundTripper
	registerer   prometheus.Registerer
	tracing      bool
}

// WithMetrics registers request metrics with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithTracing records an OpenTelemetry span for every request using the
// global tracer provider.
func WithTracing() Option {
	return func(o *options) {
		o.tracing = true
	}
}

// WithRoundTripper sends requests through rt instead of the pooled
// transport.
func WithRoundTripper(rt http.RoundTripper) Option {
	return func(o *options) {
		o.roundTripper = rt
	}
}

// Client is the entry point to the Picsart APIs. It is safe for concurrent
// use; calls share one connection pool.
type Client struct {
	transport *transport.Transport
	image     *ImageAPI
	genai     *GenAIAPI
}

// NewClient creates a Client. The API key is required.
func NewClient(cfg Config, logger *slog.Logger, opts ...Option) (*Client, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	cfg = cfg.withDefaults()
	if !request.APIKey(cfg.APIKey).Valid() {
		return nil, apierr.Validation("newClient", "API key must be set")
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var topts []transport.Option
	if o.roundTripper != nil {
		topts = append(topts, transport.WithRoundTripper(o.roundTripper))
	}
	if o.registerer != nil {
		m, err := transport.NewMetrics(o.registerer)
		if err != nil {
			return nil, err
		}
		topts = append(topts, transport.WithMetrics(m))
	}
	if o.tracing {
		topts = append(topts, transport.WithTracing())
	}

	tr := transport.New(transport.Config{
		MaxConnsPerHost:     orInt(cfg.MaxConnsPerHost, transport.DefaultMaxConnsPerHost),
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		TLSConfig:           cfg.TLSConfig,
		RateLimit:           cfg.RateLimit,
		RateBurst:           cfg.RateBurst,
	}, logger, topts...)

	logger = logger.With("component", "picsart-client")
	return &Client{
		transport: tr,
		image:     &ImageAPI{api{cfg: cfg, baseURL: cfg.ImageBaseURL, transport: tr, logger: logger}},
		genai:     &GenAIAPI{api{cfg: cfg, baseURL: cfg.GenAIBaseURL, transport: tr, logger: logger}},
	}, nil
}

// Image returns the Image API.
func (c *Client) Image() *ImageAPI {
	return c.image
}

// GenAI returns the GenAI API.
func (c *Client) GenAI() *GenAIAPI {
	return c.genai
}

// Close releases pooled connections. Calls in flight are not interrupted.
func (c *Client) Close() error {
	return c.transport.Close()
}

// api is the state shared by the Image and GenAI surfaces.
type api struct {
	cfg       Config
	baseURL   string
	transport *transport.Transport
	logger    *slog.Logger
}

func (a api) builder() *request.Builder {
	return &request.Builder{
		BaseURL:    a.baseURL,
		Credential: request.APIKey(a.cfg.APIKey),
		UserAgent:  a.cfg.UserAgent,
	}
}

// reply is a decoded success body with its status and metadata.
type reply[T any] struct {
	value    T
	status   int
	metadata Metadata
}

// send runs op, retrying according to the configured policy. The request is
// rebuilt for every attempt.
func send[T any](ctx context.Context, a api, op *request.Operation, schema *response.Schema) (reply[T], error) {
	policy := a.cfg.Retry
	for attempt := 1; ; attempt++ {
		rep, err := sendOnce[T](ctx, a, op, schema)
		if err == nil {
			return rep, nil
		}
		if attempt >= policy.attempts() || !policy.retries(err) || !replayable(op) {
			return rep, err
		}

		delay := policy.backoff(attempt)
		a.logger.Debug("retrying after delay", "op", op.Name, "attempt", attempt, "delay", delay, "error", err)
		if werr := sleep(ctx, delay); werr != nil {
			return rep, apierr.FromTransport(op.Name, werr)
		}
	}
}

func sendOnce[T any](ctx context.Context, a api, op *request.Operation, schema *response.Schema) (reply[T], error) {
	var rep reply[T]
	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}

	req, err := a.builder().Build(ctx, op)
	if err != nil {
		return rep, err
	}

	start := time.Now()
	resp, err := a.transport.Send(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return rep, apierr.Cancelled(op.Name, ctx.Err())
		}
		return rep, apierr.FromTransport(op.Name, err)
	}

	rep.status = resp.StatusCode
	rep.metadata = parseMetadata(resp.Header)
	v, err := response.Decode[T](op.Name, resp, schema, a.cfg.MaxResponseBytes).Unwrap()
	a.logger.Debug("call finished", "op", op.Name, "status", resp.StatusCode,
		"duration", time.Since(start), "correlation_id", rep.metadata.CorrelationID, "error", err)
	if err != nil {
		return rep, err
	}
	rep.value = v
	return rep, nil
}

// replayable reports whether every file part of op can be read again.
func replayable(op *request.Operation) bool {
	for _, p := range op.Parts {
		if p.File != nil && !p.File.Reopenable() {
			return false
		}
	}
	return true
}

func orInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
