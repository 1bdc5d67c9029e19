// Package server exposes the collection, frame, and attribution cores
// over a thin HTTP JSON API. Handlers validate input, dispatch to the
// library packages, and map their errors onto status codes; no domain
// logic lives here.
package server

import (
	"log/slog"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"go.opentelemetry.io/otel/trace"

	"github.com/fieldline/orbit/internal/attribution"
	"github.com/fieldline/orbit/internal/collector"
	"github.com/fieldline/orbit/internal/frames"
	"github.com/fieldline/orbit/internal/store"
	"github.com/fieldline/orbit/pkg/observability"
	"github.com/fieldline/orbit/pkg/version"
)

// serviceName is reported by the liveness endpoint.
const serviceName = "orbit"

// Config wires a Server. Store, Frames and Posts are required;
// Collector may be nil when no upstream credential is configured, in
// which case POST /collect answers 503.
type Config struct {
	Store     *store.Store
	Frames    *frames.Builder
	Posts     *attribution.Builder
	Collector *collector.Collector
	Logger    *slog.Logger

	// Tracer enables the per-request span middleware. Nil skips it.
	Tracer trace.Tracer

	// Metrics records RED metrics per route. Nil disables them.
	Metrics *observability.REDMetrics
}

// Server routes API requests to the core packages.
type Server struct {
	store     *store.Store
	frames    *frames.Builder
	posts     *attribution.Builder
	collector *collector.Collector
	logger    *slog.Logger
	metrics   *observability.REDMetrics
	handler   http.Handler
}

// New builds a Server with all routes registered.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		store:     cfg.Store,
		frames:    cfg.Frames,
		posts:     cfg.Posts,
		collector: cfg.Collector,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}

	router := httprouter.New()
	router.RedirectTrailingSlash = true
	router.HandleMethodNotAllowed = false
	s.register(router)

	var handler http.Handler = router
	if cfg.Tracer != nil {
		handler = observability.HTTPMiddleware(cfg.Tracer, handler)
	}

	s.handler = handler

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// register attaches every route. httprouter allows only one pattern
// per segment, so /frames/latest and POST /frames/build are dispatched
// inside the :interval_id handlers.
func (s *Server) register(router *httprouter.Router) {
	router.GET("/", s.instrument("root", s.handleRoot))
	router.POST("/collect", s.instrument("collect", s.handleCollect))

	router.GET("/runs", s.instrument("runs_list", s.handleRuns))
	router.GET("/runs/:id", s.instrument("runs_get", s.handleRun))
	router.GET("/snapshots", s.instrument("snapshots_list", s.handleSnapshots))
	router.GET("/intervals", s.instrument("intervals_list", s.handleIntervals))
	router.GET("/intervals/:id/events", s.instrument("interval_events", s.handleIntervalEvents))
	router.GET("/accounts", s.instrument("accounts_list", s.handleAccounts))
	router.GET("/stats", s.instrument("stats", s.handleStats))

	router.GET("/frames", s.instrument("frames_list", s.handleFrames))
	router.GET("/frames/:interval_id", s.instrument("frames_get", s.handleFrame))
	router.POST("/frames/:interval_id", s.instrument("frames_build", s.handleFrameBuild))
	router.GET("/graph", s.instrument("graph", s.handleGraph))

	router.GET("/timeline/frames", s.instrument("timeline_frames", s.handleTimelineFrames))
	router.GET("/timeline/interpolate", s.instrument("timeline_interpolate", s.handleInterpolate))
	router.GET("/positions/history", s.instrument("position_history", s.handlePositionHistory))

	router.GET("/posts", s.instrument("posts_list", s.handlePosts))

	router.Handler(http.MethodGet, "/healthz", observability.HealthHandler())
	router.Handler(http.MethodGet, "/readyz", observability.ReadyHandler(s.store.Ping))

	metricsHandler, err := observability.PrometheusHandler()
	if err != nil {
		s.logger.Warn("metrics endpoint disabled", "error", err)
	} else {
		router.Handler(http.MethodGet, "/metrics", metricsHandler)
	}
}

// handleRoot answers the liveness probe.
func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": serviceName,
		"status":  "ok",
		"version": version.Version,
	})
}
