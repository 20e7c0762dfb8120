// SPDX-License-Identifier: MIT

// Package api exposes the upload, catalog and playback endpoints over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/streamloft/vodhub/internal/assemble"
	"github.com/streamloft/vodhub/internal/catalog"
	"github.com/streamloft/vodhub/internal/config"
	"github.com/streamloft/vodhub/internal/log"
	"github.com/streamloft/vodhub/internal/transcode"
	"github.com/streamloft/vodhub/internal/upload"
)

// Server holds the wiring for all HTTP handlers.
type Server struct {
	cfg       *config.AppConfig
	tracker   *upload.Tracker
	receiver  *upload.Receiver
	assembler *assemble.Assembler
	scheduler *transcode.Scheduler
	catalog   *catalog.Store
	counters  catalog.Counters
	logger    zerolog.Logger
}

// New assembles a Server from its collaborators.
func New(cfg *config.AppConfig, tracker *upload.Tracker, receiver *upload.Receiver,
	assembler *assemble.Assembler, scheduler *transcode.Scheduler,
	store *catalog.Store, counters catalog.Counters) *Server {
	return &Server{
		cfg:       cfg,
		tracker:   tracker,
		receiver:  receiver,
		assembler: assembler,
		scheduler: scheduler,
		catalog:   store,
		counters:  counters,
		logger:    log.WithComponent("api"),
	}
}

// Router builds the chi router with the full middleware stack. Order matters:
// recovery first so panics in later middleware are caught, request IDs before
// logging so log lines correlate, rate limiting last so rejected requests are
// still counted and logged.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(s.requestIDMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(securityHeaders)
	r.Use(s.metricsMiddleware)
	if s.cfg.TracingEnabled {
		r.Use(s.tracingMiddleware)
	}
	r.Use(s.loggingMiddleware)
	if s.cfg.RateLimitRPM > 0 {
		r.Use(httprate.LimitByIP(s.cfg.RateLimitRPM, time.Minute))
	}

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/upload", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Post("/init", s.handleInit)
		r.Post("/chunk", s.handleChunk)
		r.Post("/complete", s.handleComplete)

		r.Get("/videos", s.handleListVideos)
		r.Get("/search", s.handleSearch)
		r.Route("/videos/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetVideo)
			r.Patch("/", s.handleUpdateVideo)
			r.Delete("/", s.handleDeleteVideo)
			r.Post("/view", s.handleView)
			r.Post("/like", s.handleLike)
		})
	})

	r.Mount("/hls", http.StripPrefix("/hls", s.secureFileServer()))

	return r
}

func (s *Server) tracingMiddleware(next http.Handler) http.Handler {
	return otelhttp.NewHandler(next, "vodhub.http")
}
