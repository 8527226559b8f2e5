// Package api exposes ingestion, recent readings and model status over HTTP.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"smartair-guardian/internal/common"
	"smartair-guardian/internal/ingest"
	"smartair-guardian/internal/ml"
	"smartair-guardian/internal/readings"
	"smartair-guardian/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 1 << 20

// ModelStatus reports the model registry lifecycle.
type ModelStatus interface {
	Status() ml.Status
}

// RunHistory reads recorded training runs.
type RunHistory interface {
	LatestRun() (storage.RunRecord, error)
	RunsBetween(start, end time.Time) ([]storage.RunRecord, error)
}

// MetricsInterface records request latency per route and counts server errors.
type MetricsInterface interface {
	ObserveRequest(route string, status int, seconds float64)
	ErrorsInc()
}

// Config holds request defaults.
type Config struct {
	DefaultLimit int
}

// Server routes the public HTTP API.
type Server struct {
	router  *chi.Mux
	ingest  *ingest.Service
	store   *readings.Store
	models  ModelStatus
	runs    RunHistory
	stream  http.Handler
	metrics MetricsInterface
	limit   int
}

// Option configures a Server.
type Option func(*Server)

// WithRunHistory serves the training runs recorded in h on /model/info.
func WithRunHistory(h RunHistory) Option {
	return func(s *Server) { s.runs = h }
}

// WithStream mounts h on /readings/stream.
func WithStream(h http.Handler) Option {
	return func(s *Server) { s.stream = h }
}

// WithMetrics records request durations.
func WithMetrics(m MetricsInterface) Option {
	return func(s *Server) { s.metrics = m }
}

// New builds the router.
func New(cfg Config, svc *ingest.Service, store *readings.Store, models ModelStatus, opts ...Option) *Server {
	s := &Server{
		router: chi.NewRouter(),
		ingest: svc,
		store:  store,
		models: models,
		limit:  cfg.DefaultLimit,
	}
	if s.limit <= 0 {
		s.limit = common.DefaultReadingsLimit
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.requestLogger)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/", s.handleRoot)
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/model/info", s.handleModelInfo)

	s.router.Post("/ingest", s.handleIngest)
	s.router.Get("/readings/latest", s.handleLatest)
	if s.stream != nil {
		s.router.Handle("/readings/stream", s.stream)
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)

		if s.metrics != nil {
			s.metrics.ObserveRequest(route, status, elapsed.Seconds())
			if status >= http.StatusInternalServerError {
				s.metrics.ErrorsInc()
			}
		}
		log.Debug().
			Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Dur("duration", elapsed).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set(common.HeaderContentType, common.ContentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}
