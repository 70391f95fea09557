// Package telemetry implements the primary ingestion pipeline for
// PlantPulse Core: it subscribes to the namespace topic tree, classifies
// inbound messages, and dispatches each one to exactly one handler.
//
// # Topic Scheme
//
// All traffic lives under a configurable namespace (default "iiot"):
//
//	{ns}/{entityId}/data      sensor readings batches
//	{ns}/{entityId}/status    device status documents
//	{ns}/{entityId}/alerts    device-raised alerts
//	{ns}/{entityId}/config    configuration pushes
//	{ns}/system/{subtype}     platform-wide system messages
//	{ns}/broadcast/{subtype}  operator broadcasts
//
// The second segment is the entity ID unless it is one of the reserved
// categories (system, broadcast). Entity IDs are opaque strings; the
// reserved words cannot be used as entity IDs.
//
// # Dispatch
//
// Every pattern is subscribed at QoS 1. Payloads must be JSON objects;
// anything that fails to decode is logged and dropped without touching
// the cache or any buffer. Handler failures are isolated per message:
// an error or panic while handling message K never prevents message
// K+1 from being processed.
//
// # Side Effects
//
// Handlers write through the store boundary only:
//
//   - data/status: full-replace write of the latest-state cache
//     (key "state:{entityId}", TTL-bound)
//   - alerts: append to the entity's bounded alert buffer
//     (key "alerts:{entityId}", newest first)
//   - config: logged and fanned out, nothing persisted
//   - system/broadcast: fanned out to all connected observers
//
// Delivery to WebSocket observers is best-effort via the fan-out hub;
// the pipeline never blocks on a slow observer.
package telemetry
