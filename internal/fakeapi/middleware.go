package fakeapi

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/me/creativeapis/internal/logging"
	"github.com/me/creativeapis/internal/request"
)

type ctxKey string

const ctxKeyCorrelationID ctxKey = "correlation_id"

// Response headers emitted on every API response.
const (
	headerCorrelationID  = "X-Picsart-Correlation-Id"
	headerRateLimit      = "X-Picsart-Ratelimit-Limit"
	headerRateAvailable  = "X-Picsart-Ratelimit-Available"
	headerRateReset      = "X-Picsart-Ratelimit-Reset-Time"
	headerCreditsAvail   = "X-Picsart-Credit-Available"
	rateLimitPerInterval = 1000
)

// CorrelationIDFromContext extracts the correlation ID from context.
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKeyCorrelationID).(string); ok {
		return id
	}
	return ""
}

// correlationMiddleware assigns each request a correlation ID.
func correlationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := newID()
		ctx := context.WithValue(r.Context(), ctxKeyCorrelationID, id)
		w.Header().Set(headerCorrelationID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware logs HTTP requests at INFO level (method, path, status, duration).
func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sw, r)

			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration", time.Since(start).String(),
				"correlation_id", CorrelationIDFromContext(r.Context()),
				"api_key", r.Header.Get(request.APIKeyHeader),
			)
		})
	}
}

// authMiddleware rejects requests without a valid API key.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys := r.Header.Values(request.APIKeyHeader)
		switch {
		case len(keys) != 1 || keys[0] == "":
			respondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		case s.apiKey != "" && keys[0] != s.apiKey:
			s.logger.Debug("rejected key", "api_key", logging.Mask(keys[0]))
			respondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) countMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests++
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

// failureMiddleware answers with the next injected failure, if any.
func (s *Server) failureMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		status := 0
		if len(s.failures) > 0 {
			status = s.failures[0]
			s.failures = s.failures[1:]
		}
		s.mu.Unlock()

		switch {
		case status == 0:
			next.ServeHTTP(w, r)
		case status == http.StatusTooManyRequests:
			w.Header().Set("Retry-After", "1")
			respondJSON(w, status, map[string]string{"error": "rate_limited"})
		default:
			respondJSON(w, status, map[string]any{"detail": http.StatusText(status), "code": status})
		}
	})
}

// quotaMiddleware reports rate limit and credit headers. Write requests
// cost one credit; once credits run out they are rejected with 402.
func (s *Server) quotaMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		charge := r.Method == http.MethodPost
		exhausted := charge && s.credits < 1
		if charge && !exhausted {
			s.credits--
		}
		credits := s.credits
		used := s.requests
		s.mu.Unlock()

		h := w.Header()
		h.Set(headerRateLimit, strconv.Itoa(rateLimitPerInterval))
		h.Set(headerRateAvailable, strconv.Itoa(max(rateLimitPerInterval-used, 0)))
		h.Set(headerRateReset, strconv.FormatInt(time.Now().Add(time.Minute).Unix(), 10))
		h.Set(headerCreditsAvail, strconv.FormatFloat(credits, 'f', -1, 64))

		if exhausted {
			respondError(w, http.StatusPaymentRequired, "Insufficient credits")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusWriter captures the response status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
