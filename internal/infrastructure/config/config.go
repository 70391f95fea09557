package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for PlantPulse Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Service    ServiceConfig    `yaml:"service"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Correlator CorrelatorConfig `yaml:"correlator"`
	Store      StoreConfig      `yaml:"store"`
	API        APIConfig        `yaml:"api"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServiceConfig contains instance-level identification.
type ServiceConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// MQTTConfig contains primary MQTT broker connection settings.
type MQTTConfig struct {
	Broker         MQTTBrokerConfig `yaml:"broker"`
	Auth           MQTTAuthConfig   `yaml:"auth"`
	QoS            int              `yaml:"qos"`
	ConnectTimeout int              `yaml:"connect_timeout"`
	KeepAlive      int              `yaml:"keep_alive"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// TelemetryConfig contains the inbound telemetry pipeline settings.
type TelemetryConfig struct {
	// Namespace is the root segment of all device topics,
	// e.g. "iiot" for iiot/{entityId}/data.
	Namespace string `yaml:"namespace"`

	// CacheTTL is the latest-state cache expiry in seconds.
	CacheTTL int `yaml:"cache_ttl"`

	// AlertBufferSize caps the per-entity alert history.
	AlertBufferSize int `yaml:"alert_buffer_size"`
}

// CorrelatorConfig contains settings for the secondary AAS event connection.
type CorrelatorConfig struct {
	Enabled         bool                  `yaml:"enabled"`
	Broker          MQTTBrokerConfig      `yaml:"broker"`
	Auth            MQTTAuthConfig        `yaml:"auth"`
	QoS             int                   `yaml:"qos"`
	ConnectTimeout  int                   `yaml:"connect_timeout"`
	Reconnect       ReconnectConfig       `yaml:"reconnect"`
	Categories      CategoryPrefixConfig  `yaml:"categories"`
	EventBufferSize int                   `yaml:"event_buffer_size"`
	RelayChannel    string                `yaml:"relay_channel"`
}

// ReconnectConfig contains bounded reconnection settings.
type ReconnectConfig struct {
	// InitialDelay is the first retry delay in seconds; each
	// subsequent retry doubles it.
	InitialDelay int `yaml:"initial_delay"`

	// MaxRetries is the number of retries after the initial
	// attempt before the connection is declared failed.
	MaxRetries int `yaml:"max_retries"`
}

// CategoryPrefixConfig maps AAS event categories to their topic prefixes.
type CategoryPrefixConfig struct {
	Shell     string `yaml:"shell"`
	Submodel  string `yaml:"submodel"`
	Registry  string `yaml:"registry"`
	Discovery string `yaml:"discovery"`
}

// StoreConfig selects and configures the shared state store.
type StoreConfig struct {
	// Backend is "memory" or "redis".
	Backend string      `yaml:"backend"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket fan-out settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB telemetry sink settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: PLANTPULSE_SECTION_KEY
// For example: PLANTPULSE_MQTT_HOST, PLANTPULSE_REDIS_ADDR
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			ID:   "plantpulse-001",
			Name: "PlantPulse Core",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "localhost",
				Port: 1883,
			},
			QoS:            1,
			ConnectTimeout: 4,
			KeepAlive:      30,
		},
		Telemetry: TelemetryConfig{
			Namespace:       "iiot",
			CacheTTL:        3600,
			AlertBufferSize: 1000,
		},
		Correlator: CorrelatorConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host: "localhost",
				Port: 1883,
			},
			QoS:            1,
			ConnectTimeout: 10,
			Reconnect: ReconnectConfig{
				InitialDelay: 5,
				MaxRetries:   10,
			},
			Categories: CategoryPrefixConfig{
				Shell:     "shells",
				Submodel:  "submodels",
				Registry:  "registry",
				Discovery: "discovery",
			},
			EventBufferSize: 1000,
			RelayChannel:    "plantpulse:aas-events",
		},
		Store: StoreConfig{
			Backend: "memory",
			Redis: RedisConfig{
				Addr: "localhost:6379",
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: PLANTPULSE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Primary MQTT
	if v := os.Getenv("PLANTPULSE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("PLANTPULSE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("PLANTPULSE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Correlator MQTT
	if v := os.Getenv("PLANTPULSE_CORRELATOR_HOST"); v != "" {
		cfg.Correlator.Broker.Host = v
	}
	if v := os.Getenv("PLANTPULSE_CORRELATOR_USERNAME"); v != "" {
		cfg.Correlator.Auth.Username = v
	}
	if v := os.Getenv("PLANTPULSE_CORRELATOR_PASSWORD"); v != "" {
		cfg.Correlator.Auth.Password = v
	}

	// Store
	if v := os.Getenv("PLANTPULSE_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("PLANTPULSE_REDIS_ADDR"); v != "" {
		cfg.Store.Redis.Addr = v
	}
	if v := os.Getenv("PLANTPULSE_REDIS_PASSWORD"); v != "" {
		cfg.Store.Redis.Password = v
	}

	// API
	if v := os.Getenv("PLANTPULSE_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("PLANTPULSE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Service validation
	if c.Service.ID == "" {
		errs = append(errs, "service.id is required")
	}

	// Telemetry validation
	if c.Telemetry.Namespace == "" {
		errs = append(errs, "telemetry.namespace is required")
	} else if strings.ContainsAny(c.Telemetry.Namespace, "/+#") {
		errs = append(errs, "telemetry.namespace must be a single topic segment without wildcards")
	}
	if c.Telemetry.AlertBufferSize < 1 {
		errs = append(errs, "telemetry.alert_buffer_size must be at least 1")
	}
	if c.Telemetry.CacheTTL < 1 {
		errs = append(errs, "telemetry.cache_ttl must be at least 1 second")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// Correlator validation
	if c.Correlator.QoS < 0 || c.Correlator.QoS > 2 {
		errs = append(errs, "correlator.qos must be 0, 1, or 2")
	}
	if c.Correlator.Reconnect.MaxRetries < 0 {
		errs = append(errs, "correlator.reconnect.max_retries must not be negative")
	}
	if c.Correlator.Reconnect.InitialDelay < 1 {
		errs = append(errs, "correlator.reconnect.initial_delay must be at least 1 second")
	}
	if c.Correlator.EventBufferSize < 1 {
		errs = append(errs, "correlator.event_buffer_size must be at least 1")
	}
	errs = append(errs, validateCategoryPrefixes(c.Correlator.Categories)...)

	// Store validation
	switch c.Store.Backend {
	case "memory":
	case "redis":
		if c.Store.Redis.Addr == "" {
			errs = append(errs, "store.redis.addr is required when store.backend is redis")
		}
	default:
		errs = append(errs, "store.backend must be memory or redis")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// validateCategoryPrefixes checks that all four AAS topic prefixes are
// present, wildcard-free and distinct. Duplicate prefixes would make
// event classification ambiguous.
func validateCategoryPrefixes(c CategoryPrefixConfig) []string {
	var errs []string

	prefixes := map[string]string{
		"shell":     c.Shell,
		"submodel":  c.Submodel,
		"registry":  c.Registry,
		"discovery": c.Discovery,
	}

	seen := make(map[string]string, len(prefixes))
	for name, prefix := range prefixes {
		if prefix == "" {
			errs = append(errs, fmt.Sprintf("correlator.categories.%s is required", name))
			continue
		}
		if strings.ContainsAny(prefix, "/+#") {
			errs = append(errs, fmt.Sprintf("correlator.categories.%s must be a single topic segment without wildcards", name))
			continue
		}
		if other, dup := seen[prefix]; dup {
			errs = append(errs, fmt.Sprintf("correlator.categories.%s duplicates %s prefix %q", name, other, prefix))
			continue
		}
		seen[prefix] = name
	}

	return errs
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetConnectTimeout returns the primary broker connect timeout as a Duration.
func (m MQTTConfig) GetConnectTimeout() time.Duration {
	return time.Duration(m.ConnectTimeout) * time.Second
}

// GetKeepAlive returns the primary broker keep-alive interval as a Duration.
func (m MQTTConfig) GetKeepAlive() time.Duration {
	return time.Duration(m.KeepAlive) * time.Second
}

// GetConnectTimeout returns the correlator connect timeout as a Duration.
func (c CorrelatorConfig) GetConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeout) * time.Second
}

// GetInitialDelay returns the first correlator retry delay as a Duration.
func (r ReconnectConfig) GetInitialDelay() time.Duration {
	return time.Duration(r.InitialDelay) * time.Second
}

// GetCacheTTL returns the latest-state cache expiry as a Duration.
func (t TelemetryConfig) GetCacheTTL() time.Duration {
	return time.Duration(t.CacheTTL) * time.Second
}
