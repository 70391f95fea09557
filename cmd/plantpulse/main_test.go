package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeConfig writes a temp config file and points PLANTPULSE_CONFIG at it.
func writeConfig(t *testing.T, content string) {
	t.Helper()

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	originalEnv := os.Getenv("PLANTPULSE_CONFIG")
	t.Cleanup(func() { os.Setenv("PLANTPULSE_CONFIG", originalEnv) })
	os.Setenv("PLANTPULSE_CONFIG", configPath)
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	originalEnv := os.Getenv("PLANTPULSE_CONFIG")
	defer os.Setenv("PLANTPULSE_CONFIG", originalEnv)

	os.Setenv("PLANTPULSE_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_InvalidStoreBackend verifies run fails config validation.
func TestRun_InvalidStoreBackend(t *testing.T) {
	writeConfig(t, `
service:
  id: test-instance

telemetry:
  namespace: iiot

store:
  backend: cassandra

mqtt:
  broker:
    host: "127.0.0.1"
    port: 1883
    client_id: "test-client"

correlator:
  enabled: false

influxdb:
  enabled: false

logging:
  level: error
  format: text
  output: stdout
`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with unknown store backend")
	}
	if !strings.Contains(err.Error(), "store.backend") {
		t.Errorf("error = %v, want store.backend validation failure", err)
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	originalEnv := os.Getenv("PLANTPULSE_CONFIG")
	defer os.Setenv("PLANTPULSE_CONFIG", originalEnv)

	os.Unsetenv("PLANTPULSE_CONFIG")

	path := getConfigPath()
	if path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	originalEnv := os.Getenv("PLANTPULSE_CONFIG")
	defer os.Setenv("PLANTPULSE_CONFIG", originalEnv)

	expected := "/custom/path/config.yaml"
	os.Setenv("PLANTPULSE_CONFIG", expected)

	path := getConfigPath()
	if path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

// TestRun_UnreachableBroker verifies a failed primary connection is a
// startup error, not a silent retry loop.
func TestRun_UnreachableBroker(t *testing.T) {
	writeConfig(t, `
service:
  id: test-instance

telemetry:
  namespace: iiot

store:
  backend: memory

mqtt:
  broker:
    host: "127.0.0.1"
    port: 19999
    client_id: "test-client"
  connect_timeout: 1

correlator:
  enabled: false

influxdb:
  enabled: false

logging:
  level: error
  format: text
  output: stdout
`)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail when the primary broker is unreachable")
	}
	if !strings.Contains(err.Error(), "MQTT") {
		t.Errorf("error = %v, want MQTT connect failure", err)
	}
}

// TestRun_SuccessfulStartupAndShutdown tests full startup with running services.
// Requires an MQTT broker at 127.0.0.1:1883.
func TestRun_SuccessfulStartupAndShutdown(t *testing.T) {
	writeConfig(t, `
service:
  id: test-instance

telemetry:
  namespace: iiot

store:
  backend: memory

mqtt:
  broker:
    host: "127.0.0.1"
    port: 1883
    client_id: "test-successful-startup"
  connect_timeout: 2

correlator:
  enabled: false

influxdb:
  enabled: false

api:
  host: "127.0.0.1"
  port: 18085

logging:
  level: error
  format: text
  output: stdout
`)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := run(ctx)
	if err != nil {
		t.Logf("run() returned error: %v (may be due to missing MQTT broker)", err)
	}
}
