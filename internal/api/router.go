package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/plantpulse/core/internal/fanout"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Prometheus metrics (no auth, scraped from inside the deployment)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	// WebSocket fan-out mount
	r.Get(s.wsPath(), s.hub.ServeWS(s.wsOptions()))

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)

		// Entity read surface over the latest-state cache and alert buffers
		r.Route("/entities/{id}", func(r chi.Router) {
			r.Get("/state", s.handleGetEntityState)
			r.Get("/alerts", s.handleListEntityAlerts)
			r.Post("/config", s.handlePushEntityConfig)
		})

		// Lifecycle event query surface
		r.Get("/events/recent", s.handleRecentEvents)
	})

	return r
}

// wsPath returns the configured WebSocket mount path.
func (s *Server) wsPath() string {
	if s.wsCfg.Path != "" {
		return s.wsCfg.Path
	}
	return "/ws"
}

// wsOptions maps the WebSocket config onto hub connection options.
// Zero values fall through to the hub's own defaults.
func (s *Server) wsOptions() fanout.Options {
	return fanout.Options{
		PingInterval:   time.Duration(s.wsCfg.PingInterval) * time.Second,
		PongTimeout:    time.Duration(s.wsCfg.PongTimeout) * time.Second,
		MaxMessageSize: int64(s.wsCfg.MaxMessageSize),
	}
}
