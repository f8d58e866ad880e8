// Package fakeapi is an in-process stand-in for the Picsart Image and GenAI
// APIs. It serves both surfaces from one router so a client can point both
// base URLs at it.
package fakeapi

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/me/creativeapis/internal/logging"
)

// DefaultEffects is the catalogue returned by GET /effects.
var DefaultEffects = []string{"apr1", "brnz1", "icy1", "mnch1", "ntrl1", "sft1", "tl1", "zen1"}

// Server emulates the Picsart APIs.
type Server struct {
	router  chi.Router
	logger  *slog.Logger
	apiKey  string
	effects []string

	// pendingPolls is how many status polls report an async job as still
	// processing.
	pendingPolls int
	failJobs     bool

	mu       sync.Mutex
	credits  float64
	failures []int
	jobs     map[string]*job
	requests int
}

type job struct {
	remaining int
	images    []string
	failed    bool
}

// Option configures optional Server behaviour.
type Option func(*Server)

// WithAPIKey requires every request to carry key. Without it any
// non-empty key is accepted.
func WithAPIKey(key string) Option {
	return func(s *Server) {
		s.apiKey = key
	}
}

// WithCredits sets the starting credit balance.
func WithCredits(c float64) Option {
	return func(s *Server) {
		s.credits = c
	}
}

// WithPendingPolls sets how many polls an async job stays in progress.
func WithPendingPolls(n int) Option {
	return func(s *Server) {
		s.pendingPolls = n
	}
}

// WithFailedJobs makes every text to image inference end in FAILED.
func WithFailedJobs() Option {
	return func(s *Server) {
		s.failJobs = true
	}
}

// WithFailures makes the next len(statuses) requests fail with the given
// HTTP statuses, in order.
func WithFailures(statuses ...int) Option {
	return func(s *Server) {
		s.failures = append(s.failures, statuses...)
	}
}

// WithEffects replaces the effect catalogue.
func WithEffects(names ...string) Option {
	return func(s *Server) {
		s.effects = names
	}
}

// New creates a Server with all routes registered.
func New(logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Server{
		router:       chi.NewRouter(),
		logger:       logger.With("component", "fakeapi"),
		effects:      DefaultEffects,
		pendingPolls: 1,
		credits:      100,
		jobs:         make(map[string]*job),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Requests returns the number of API requests received, excluding CDN
// downloads.
func (s *Server) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

// Credits returns the remaining balance.
func (s *Server) Credits() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.credits
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(correlationMiddleware)
	r.Use(loggingMiddleware(s.logger))

	// Result images.
	r.Get("/cdn/{file}", s.handleCDN)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Use(s.countMiddleware)
		r.Use(s.failureMiddleware)
		r.Use(s.quotaMiddleware)

		// Image API
		r.Get("/balance", s.handleBalance)
		r.Get("/effects", s.handleListEffects)
		r.Post("/effects/previews", s.handlePreviews)
		r.Post("/upscale/ultra", s.handleUltraUpscale)
		r.Get("/upscale/ultra/{transactionID}", s.handleUltraUpscaleResult)
		r.Post("/upload", s.handleUpload)
		for _, path := range []string{
			"/removebg", "/effects", "/upscale", "/upscale/enhance", "/enhance/face",
			"/adjust", "/background/texture", "/surfacemap",
		} {
			r.Post(path, s.handleImage)
		}

		// GenAI API
		r.Post("/text2image", s.handleText2Image)
		r.Get("/text2image/inferences/{inferenceID}", s.handleInference)
	})
}
