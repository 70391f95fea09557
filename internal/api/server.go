package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/plantpulse/core/internal/correlator"
	"github.com/plantpulse/core/internal/fanout"
	"github.com/plantpulse/core/internal/infrastructure/config"
	"github.com/plantpulse/core/internal/infrastructure/logging"
	"github.com/plantpulse/core/internal/infrastructure/metrics"
	"github.com/plantpulse/core/internal/infrastructure/mqtt"
	"github.com/plantpulse/core/internal/telemetry"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Broker is the slice of the MQTT client the API needs for status
// reporting and the config push. Satisfied by *mqtt.Client.
type Broker interface {
	State() mqtt.State
	Status() mqtt.Status
	PublishJSON(topic string, v any, qos byte, retained bool) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config config.APIConfig
	WS     config.WebSocketConfig
	Logger *logging.Logger

	// Broker is the primary MQTT session. Optional; without it the
	// config push endpoint returns 503 and status omits the session.
	Broker Broker

	// Pipeline serves the latest-state and alert read endpoints.
	Pipeline *telemetry.Service

	// Correlator serves the lifecycle event endpoints. Optional.
	Correlator *correlator.Correlator

	// Hub is the fan-out hub mounted at the WebSocket path. If nil the
	// server creates and runs its own.
	Hub *fanout.Hub

	// Metrics serves /metrics. Optional.
	Metrics *metrics.Registry

	Version string
}

// Server is the HTTP API server for PlantPulse Core.
//
// It manages the HTTP listener, routes, middleware, and the WebSocket
// mount. The server is created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	logger     *logging.Logger
	broker     Broker
	pipeline   *telemetry.Service
	correlator *correlator.Correlator
	hub        *fanout.Hub
	metrics    *metrics.Registry
	version    string
	startTime  time.Time
	server     *http.Server
	cancel     context.CancelFunc // cancels the internally-run hub on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger) plus optional components
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	// Everything else is optional; endpoints degrade per missing component.

	return &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		logger:     deps.Logger,
		broker:     deps.Broker,
		pipeline:   deps.Pipeline,
		correlator: deps.Correlator,
		hub:        deps.Hub,
		metrics:    deps.Metrics,
		version:    deps.Version,
		startTime:  time.Now(),
	}, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, runs the WebSocket hub when none was injected,
// and launches the HTTP listener in a background goroutine. The server
// is stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	// Internal context so Close() can stop an internally-created hub
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = fanout.NewHub()
		s.hub.SetLogger(s.logger)
		if s.metrics != nil {
			s.hub.SetMetrics(s.metrics)
		}
		go s.hub.Run(srvCtx)
	}

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	// Start listening in background
	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
