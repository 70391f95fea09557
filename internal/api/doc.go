// Package api implements the HTTP and WebSocket surface of PlantPulse Core.
//
// This package provides:
//   - Read endpoints over the latest-state cache and alert buffers
//   - Status and health endpoints covering both broker sessions
//   - The lifecycle event query surface of the correlator
//   - The WebSocket mount for the fan-out hub
//   - Prometheus metrics at /metrics
//   - Middleware stack (request ID, logging, recovery, CORS)
//   - TLS support for production deployments
//
// # Architecture
//
// The API server is a read-mostly window onto the ingestion pipeline.
// Telemetry flows in over MQTT and out over the WebSocket hub without
// touching this package; the REST endpoints serve the cached results
// (latest state, buffered alerts, classified lifecycle events) and the
// operational status of the two broker sessions. The one write path is
// the configuration push, which publishes to an entity's config topic.
//
// # Graceful Degradation
//
// Every dependency beyond the logger is optional. Without the primary
// broker the config push returns 503 and status reports the gap; without
// the correlator the event endpoints return 503; reads and WebSocket
// connections keep working throughout.
package api
