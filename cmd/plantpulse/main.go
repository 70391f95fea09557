// PlantPulse Core - Industrial Telemetry Platform
//
// This is the main entry point for the PlantPulse Core application.
// PlantPulse ingests plant-floor telemetry over MQTT and serves it to
// operator dashboards in real time:
//   - One primary broker session feeding the ingestion pipeline
//   - A second session correlating asset lifecycle events
//   - WebSocket fan-out with per-entity rooms
//   - Optional InfluxDB sink for long-term sensor history
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/plantpulse/core/internal/api"
	"github.com/plantpulse/core/internal/correlator"
	"github.com/plantpulse/core/internal/fanout"
	"github.com/plantpulse/core/internal/infrastructure/config"
	"github.com/plantpulse/core/internal/infrastructure/influxdb"
	"github.com/plantpulse/core/internal/infrastructure/logging"
	"github.com/plantpulse/core/internal/infrastructure/metrics"
	"github.com/plantpulse/core/internal/infrastructure/mqtt"
	"github.com/plantpulse/core/internal/store"
	"github.com/plantpulse/core/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting PlantPulse Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Metrics registry
	reg := metrics.NewRegistry()
	reg.SetSystemInfo(version)

	// Open the shared state store
	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() {
		log.Info("closing store")
		if closeErr := st.Close(); closeErr != nil {
			log.Error("error closing store", "error", closeErr)
		}
	}()

	// Fan-out hub for WebSocket observers
	hub := fanout.NewHub()
	hub.SetLogger(log)
	hub.SetMetrics(reg)
	go hub.Run(ctx)

	// Connect the primary MQTT session
	topics := telemetry.NewTopics(cfg.Telemetry.Namespace)
	mqttClient, err := mqtt.Connect(primaryBrokerConfig(cfg, topics))
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Connection state callbacks: log plus the connectivity gauge.
	// Subscriptions are re-issued by the client itself on reconnect.
	reg.SetBrokerConnected("primary", true)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
		reg.SetBrokerConnected("primary", true)
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
		reg.SetBrokerConnected("primary", false)
	})

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetMetrics(reg)
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Telemetry ingestion pipeline
	pipelineOpts := telemetry.Options{
		Namespace: cfg.Telemetry.Namespace,
		CacheTTL:  time.Duration(cfg.Telemetry.CacheTTL) * time.Second,
		AlertCap:  cfg.Telemetry.AlertBufferSize,
		Broker:    mqttClient,
		Store:     st,
		Emitter:   hub,
		Metrics:   reg,
		Logger:    log,
	}
	if influxClient != nil {
		pipelineOpts.Sink = influxClient
	}
	pipeline, err := telemetry.NewService(pipelineOpts)
	if err != nil {
		return fmt.Errorf("creating telemetry pipeline: %w", err)
	}
	if err := pipeline.Start(); err != nil {
		return fmt.Errorf("starting telemetry pipeline: %w", err)
	}
	defer func() {
		log.Info("stopping telemetry pipeline")
		pipeline.Stop()
	}()

	// Lifecycle event correlator (optional second broker session)
	var corr *correlator.Correlator
	if cfg.Correlator.Enabled {
		corr, err = startCorrelator(ctx, cfg, st, hub, reg, log)
		if err != nil {
			return fmt.Errorf("starting correlator: %w", err)
		}
		defer func() {
			log.Info("stopping correlator")
			corr.Stop()
		}()
	} else {
		log.Info("correlator disabled")
	}

	// HTTP API and WebSocket mount
	apiServer, err := api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Logger:     log,
		Broker:     mqttClient,
		Pipeline:   pipeline,
		Correlator: corr,
		Hub:        hub,
		Metrics:    reg,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started",
		"address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
	)

	// Verify all connections are healthy
	if err := healthCheck(ctx, mqttClient, influxClient, apiServer); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. API server
	// 2. Correlator (if enabled)
	// 3. Telemetry pipeline
	// 4. InfluxDB (if enabled)
	// 5. MQTT
	// 6. Store

	log.Info("PlantPulse Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses PLANTPULSE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("PLANTPULSE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// openStore creates the configured state store backend.
//
// Parameters:
//   - ctx: Context for the initial Redis connectivity check
//   - cfg: Application configuration
//   - log: Logger instance
//
// Returns:
//   - store.Store: Ready-to-use store
//   - error: If the Redis backend cannot be reached
func openStore(ctx context.Context, cfg *config.Config, log *logging.Logger) (store.Store, error) {
	switch cfg.Store.Backend {
	case "redis":
		st, err := store.NewRedis(ctx, store.RedisOptions{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to Redis: %w", err)
		}
		log.Info("store connected", "backend", "redis", "addr", cfg.Store.Redis.Addr)
		return st, nil
	default:
		log.Info("store initialised", "backend", "memory")
		return store.NewMemory(), nil
	}
}

// primaryBrokerConfig maps the loaded configuration onto the primary
// MQTT session settings. The primary session reconnects on its own and
// reports presence on the namespace status topic.
func primaryBrokerConfig(cfg *config.Config, topics telemetry.Topics) mqtt.Config {
	return mqtt.Config{
		BrokerHost:     cfg.MQTT.Broker.Host,
		BrokerPort:     cfg.MQTT.Broker.Port,
		TLS:            cfg.MQTT.Broker.TLS,
		ClientID:       cfg.MQTT.Broker.ClientID,
		Username:       cfg.MQTT.Auth.Username,
		Password:       cfg.MQTT.Auth.Password,
		QoS:            byte(cfg.MQTT.QoS),
		ConnectTimeout: time.Duration(cfg.MQTT.ConnectTimeout) * time.Second,
		KeepAlive:      time.Duration(cfg.MQTT.KeepAlive) * time.Second,
		AutoReconnect:  true,
		StatusTopic:    topics.SystemStatus(),
	}
}

// startCorrelator initialises and starts the lifecycle event correlator.
//
// Parameters:
//   - ctx: Context for startup/cancellation
//   - cfg: Application configuration
//   - st: Shared state store
//   - hub: Fan-out hub for event emission
//   - reg: Metrics registry
//   - log: Logger instance
//
// Returns:
//   - *correlator.Correlator: Running correlator
//   - error: If the correlator cannot be created or started
func startCorrelator(ctx context.Context, cfg *config.Config, st store.Store, hub *fanout.Hub, reg *metrics.Registry, log *logging.Logger) (*correlator.Correlator, error) {
	corr, err := correlator.NewCorrelator(correlator.Options{
		Broker: mqtt.Config{
			BrokerHost:     cfg.Correlator.Broker.Host,
			BrokerPort:     cfg.Correlator.Broker.Port,
			TLS:            cfg.Correlator.Broker.TLS,
			ClientID:       cfg.Correlator.Broker.ClientID,
			Username:       cfg.Correlator.Auth.Username,
			Password:       cfg.Correlator.Auth.Password,
			QoS:            byte(cfg.Correlator.QoS),
			ConnectTimeout: time.Duration(cfg.Correlator.ConnectTimeout) * time.Second,
		},
		Prefixes: correlator.Prefixes{
			Shell:     cfg.Correlator.Categories.Shell,
			Submodel:  cfg.Correlator.Categories.Submodel,
			Registry:  cfg.Correlator.Categories.Registry,
			Discovery: cfg.Correlator.Categories.Discovery,
		},
		BufferCap:      cfg.Correlator.EventBufferSize,
		MaxRetries:     cfg.Correlator.Reconnect.MaxRetries,
		RetryBaseDelay: time.Duration(cfg.Correlator.Reconnect.InitialDelay) * time.Second,
		RelayChannel:   cfg.Correlator.RelayChannel,
		Store:          st,
		Emitter:        hub,
		Metrics:        reg,
		Logger:         log,
	})
	if err != nil {
		return nil, fmt.Errorf("creating correlator: %w", err)
	}

	log.Info("starting correlator",
		"broker", fmt.Sprintf("%s:%d", cfg.Correlator.Broker.Host, cfg.Correlator.Broker.Port),
		"max_retries", cfg.Correlator.Reconnect.MaxRetries,
	)

	if err := corr.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting correlator: %w", err)
	}

	return corr, nil
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//   - apiServer: API server to check
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, mqttClient *mqtt.Client, influxClient *influxdb.Client, apiServer *api.Server) error {
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	if err := apiServer.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	// Correlator health is reported through its Status(); a failed
	// secondary session is an operational signal, not a startup error.

	return nil
}
