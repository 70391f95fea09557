package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for the initial
	// connection before Connect returns an error.
	defaultConnectTimeout = 4 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 30 * time.Second

	// reconnectInitialDelay is the first background reconnect delay.
	reconnectInitialDelay = 1 * time.Second

	// reconnectMaxDelay caps the background reconnect backoff.
	reconnectMaxDelay = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// Config holds the connection settings for a single broker session.
//
// Both the primary telemetry connection and the correlator's secondary
// connection are built from this struct; they differ only in the values
// their owners supply (the correlator disables AutoReconnect and runs
// its own bounded retry loop).
type Config struct {
	// BrokerHost and BrokerPort locate the broker.
	BrokerHost string
	BrokerPort int

	// TLS switches the connection scheme from tcp:// to ssl://.
	TLS bool

	// ClientID identifies this session to the broker. If empty, a
	// unique ID with a "plantpulse-" prefix is generated.
	ClientID string

	// Username and Password are optional broker credentials.
	Username string
	Password string

	// QoS is the default quality-of-service level for convenience
	// publishes such as the online/offline status messages.
	QoS byte

	// ConnectTimeout bounds the initial connection attempt.
	// Zero means the 4-second default.
	ConnectTimeout time.Duration

	// KeepAlive is the MQTT keepalive interval. Zero means the default.
	KeepAlive time.Duration

	// AutoReconnect keeps the session alive indefinitely after
	// connection loss. When false the client stays disconnected and
	// the owner decides what to do.
	AutoReconnect bool

	// StatusTopic, when set, enables presence reporting: a retained
	// online message on connect, a retained graceful-offline message on
	// Close, and a Last Will for unexpected disconnects.
	StatusTopic string
}

// connectTimeout returns the configured or default initial connection timeout.
func (c Config) connectTimeout() time.Duration {
	if c.ConnectTimeout > 0 {
		return c.ConnectTimeout
	}
	return defaultConnectTimeout
}

// clientID returns the configured client ID, generating one if absent.
func (c Config) clientID() string {
	if c.ClientID != "" {
		return c.ClientID
	}
	return "plantpulse-" + uuid.NewString()[:8]
}

// brokerURL renders the broker address with the right scheme.
func (c Config) brokerURL() string {
	scheme := "tcp"
	if c.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.BrokerHost, c.BrokerPort)
}

// buildClientOptions creates paho MQTT options from the session config.
//
// This configures:
//   - Broker URL (tcp:// or ssl:// based on TLS setting)
//   - Client ID for identification
//   - Authentication credentials (if provided)
//   - Auto-reconnect with exponential backoff (if enabled)
//   - TLS configuration (if enabled)
//   - Clean session mode
func buildClientOptions(cfg Config, clientID string) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker(cfg.brokerURL())
	opts.SetClientID(clientID)

	// Authentication (if credentials provided)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	// Clean session - start fresh on connect (no persistent session on broker)
	opts.SetCleanSession(true)

	// Background reconnect behaviour. ConnectRetry also governs the
	// initial attempt: with it disabled a refused connection fails fast
	// instead of burning the whole connect timeout.
	opts.SetAutoReconnect(cfg.AutoReconnect)
	opts.SetConnectRetry(cfg.AutoReconnect)
	opts.SetConnectRetryInterval(reconnectInitialDelay)
	opts.SetMaxReconnectInterval(reconnectMaxDelay)

	// Connection timeout
	opts.SetConnectTimeout(cfg.connectTimeout())

	// Keepalive - broker sends PINGs to detect dead connections
	if cfg.KeepAlive > 0 {
		opts.SetKeepAlive(cfg.KeepAlive)
	} else {
		opts.SetKeepAlive(defaultKeepAlive)
	}

	// TLS configuration if enabled
	if cfg.TLS {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tlsMinVersion,
		})
	}

	return opts
}

// configureLWT sets up Last Will and Testament for offline detection.
//
// The LWT message is published by the broker if the client disconnects
// unexpectedly (crash, network failure, etc.). This lets downstream
// consumers distinguish a crashed instance from a gracefully stopped one.
//
// QoS: 1 (guaranteed delivery)
// Retained: true (new subscribers see last status)
func configureLWT(opts *pahomqtt.ClientOptions, statusTopic, clientID string) {
	willPayload := fmt.Sprintf(
		`{"status":"offline","client_id":"%s","reason":"unexpected_disconnect","timestamp":"%s"}`,
		clientID,
		time.Now().UTC().Format(time.RFC3339),
	)

	opts.SetWill(statusTopic, willPayload, 1, true)
}

// buildOnlinePayload creates the JSON payload for online status messages.
func buildOnlinePayload(clientID string) string {
	return fmt.Sprintf(
		`{"status":"online","client_id":"%s","timestamp":"%s"}`,
		clientID,
		time.Now().UTC().Format(time.RFC3339),
	)
}

// buildOfflinePayload creates the JSON payload for graceful offline status.
func buildOfflinePayload(clientID string) string {
	return fmt.Sprintf(
		`{"status":"offline","client_id":"%s","reason":"graceful_shutdown","timestamp":"%s"}`,
		clientID,
		time.Now().UTC().Format(time.RFC3339),
	)
}
