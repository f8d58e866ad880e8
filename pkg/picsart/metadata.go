package picsart

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Response headers carrying call metadata.
const (
	HeaderRateLimit          = "X-Picsart-Ratelimit-Limit"
	HeaderRateLimitRemaining = "X-Picsart-Ratelimit-Available"
	HeaderRateLimitReset     = "X-Picsart-Ratelimit-Reset-Time"
	HeaderCorrelationID      = "X-Picsart-Correlation-Id"
	HeaderCreditsAvailable   = "X-Picsart-Credit-Available"
)

// Metadata is reported by the API alongside every response. Fields are nil
// when the header was absent or malformed.
type Metadata struct {
	RateLimit          *int
	RateLimitRemaining *int
	RateLimitReset     *time.Time
	CorrelationID      string
	CreditsAvailable   *float64
}

func parseMetadata(h http.Header) Metadata {
	var m Metadata
	m.RateLimit = headerInt(h, HeaderRateLimit)
	m.RateLimitRemaining = headerInt(h, HeaderRateLimitRemaining)
	if v := headerInt64(h, HeaderRateLimitReset); v != nil {
		t := time.Unix(*v, 0).UTC()
		m.RateLimitReset = &t
	}
	m.CorrelationID = strings.TrimSpace(h.Get(HeaderCorrelationID))
	if s := strings.TrimSpace(h.Get(HeaderCreditsAvailable)); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			m.CreditsAvailable = &f
		}
	}
	return m
}

func headerInt(h http.Header, key string) *int {
	s := strings.TrimSpace(h.Get(key))
	if s == "" {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &v
}

func headerInt64(h http.Header, key string) *int64 {
	s := strings.TrimSpace(h.Get(key))
	if s == "" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}
