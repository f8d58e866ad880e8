// Package picsart is a Go client for the Picsart Creative APIs: the Image
// API (background removal, effects, upscaling, adjustments and uploads) and
// the GenAI API (text to image).
//
// Every operation returns a *Call that does nothing until it is run:
//
//	client, err := picsart.NewClient(picsart.DefaultConfig().WithAPIKey(key), logger)
//	res, err := client.Image().RemoveBackground(picsart.RemoveBackgroundParams{
//		Image: picsart.ImageURL("https://example.com/cat.jpg"),
//	}).Do(ctx)
//
// Calls can also be started in the background with Start, which returns a
// cancellable Future. Failures are always *apierr.Error values.
package picsart

import (
	"crypto/tls"
	"time"
)

// Default API endpoints.
const (
	DefaultImageBaseURL = "https://api.picsart.io/tools/1.0"
	DefaultGenAIBaseURL = "https://genai-api.picsart.io/v1"
)

// Default client settings.
const (
	DefaultTimeout          = 60 * time.Second
	DefaultMaxResponseBytes = 16 << 20
)

// Config holds all configuration for a Client.
type Config struct {
	// APIKey is sent in the X-Picsart-API-Key header of every request.
	APIKey string

	// ImageBaseURL is the base URL of the Image API.
	ImageBaseURL string

	// GenAIBaseURL is the base URL of the GenAI API.
	GenAIBaseURL string

	// Timeout bounds each HTTP exchange, from sending the request until the
	// response body is read. Zero disables the per-call timeout.
	Timeout time.Duration

	// UserAgent overrides the default User-Agent header.
	UserAgent string

	// MaxResponseBytes bounds response bodies.
	MaxResponseBytes int64

	// Connection pool settings. Zero values use the transport defaults.
	MaxConnsPerHost     int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
	TLSConfig           *tls.Config

	// RateLimit caps requests per second across the client; 0 disables it.
	RateLimit float64
	RateBurst int

	// Retry is disabled unless MaxAttempts > 1.
	Retry RetryPolicy

	// Polling settings for asynchronous jobs.
	Text2ImagePolling   PollConfig
	UltraUpscalePolling PollConfig
}

// PollConfig controls how an asynchronous job is polled.
type PollConfig struct {
	// FirstDelay is waited before the first poll.
	FirstDelay time.Duration
	// Interval is waited between polls.
	Interval time.Duration
	// MaxPolls is the number of polls after which the job is abandoned.
	MaxPolls int
}

// DefaultText2ImagePolling returns the text to image polling defaults.
func DefaultText2ImagePolling() PollConfig {
	return PollConfig{FirstDelay: 3 * time.Second, Interval: 2 * time.Second, MaxPolls: 60}
}

// DefaultUltraUpscalePolling returns the ultra upscale polling defaults.
func DefaultUltraUpscalePolling() PollConfig {
	return PollConfig{FirstDelay: 2 * time.Second, Interval: 2 * time.Second, MaxPolls: 30}
}

// DefaultConfig returns a Config with production URLs and default settings.
// The API key must still be set.
func DefaultConfig() Config {
	return Config{
		ImageBaseURL:        DefaultImageBaseURL,
		GenAIBaseURL:        DefaultGenAIBaseURL,
		Timeout:             DefaultTimeout,
		UserAgent:           "picsart-creative-apis-go/" + Version,
		MaxResponseBytes:    DefaultMaxResponseBytes,
		Text2ImagePolling:   DefaultText2ImagePolling(),
		UltraUpscalePolling: DefaultUltraUpscalePolling(),
	}
}

// WithAPIKey returns a copy of the config with the specified API key.
func (c Config) WithAPIKey(key string) Config {
	c.APIKey = key
	return c
}

// WithTimeout returns a copy of the config with the specified timeout.
func (c Config) WithTimeout(timeout time.Duration) Config {
	c.Timeout = timeout
	return c
}

// WithBaseURLs returns a copy of the config pointing at other endpoints.
// Empty arguments keep the current value.
func (c Config) WithBaseURLs(image, genai string) Config {
	if image != "" {
		c.ImageBaseURL = image
	}
	if genai != "" {
		c.GenAIBaseURL = genai
	}
	return c
}

// WithRetry returns a copy of the config with the specified retry policy.
func (c Config) WithRetry(p RetryPolicy) Config {
	c.Retry = p
	return c
}

// WithRateLimit returns a copy of the config limited to rps requests per
// second.
func (c Config) WithRateLimit(rps float64, burst int) Config {
	c.RateLimit = rps
	c.RateBurst = burst
	return c
}

// withDefaults fills zero values that have no meaningful zero.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ImageBaseURL == "" {
		c.ImageBaseURL = d.ImageBaseURL
	}
	if c.GenAIBaseURL == "" {
		c.GenAIBaseURL = d.GenAIBaseURL
	}
	if c.UserAgent == "" {
		c.UserAgent = d.UserAgent
	}
	if c.MaxResponseBytes <= 0 {
		c.MaxResponseBytes = d.MaxResponseBytes
	}
	if c.Text2ImagePolling.MaxPolls <= 0 {
		c.Text2ImagePolling = d.Text2ImagePolling
	}
	if c.UltraUpscalePolling.MaxPolls <= 0 {
		c.UltraUpscalePolling = d.UltraUpscalePolling
	}
	return c
}
