// Package store provides the shared state boundary for PlantPulse Core.
//
// All cross-component state (latest device state, bounded alert and event
// histories, the cross-process relay channel) flows through the Store
// interface. Components never talk to Redis directly, which keeps the
// pipeline testable against the in-memory implementation and lets a
// single-node deployment run without any external store.
//
// # Architecture
//
//	telemetry handlers ──┐
//	                     ├──► Store ──► memory (single node, tests)
//	correlator ──────────┘         └──► redis  (multi-instance)
//
// Only single-key operations are offered. There are no transactions and
// no multi-key atomicity: bounded lists are maintained by push-then-trim,
// which can transiently overshoot the cap when multiple writers race.
// Readers must tolerate that.
//
// # Implementations
//
//   - Memory: process-local, TTL-aware, suitable for tests and
//     single-instance deployments.
//   - Redis: backed by go-redis, for horizontally scaled deployments
//     where instances share state and relay events to each other.
//
// # Usage
//
//	st := store.NewMemory()
//	defer st.Close()
//
//	err := st.Set(ctx, "state:device-7", doc, time.Hour)
//
// # Thread Safety
//
// All implementations are safe for concurrent use from multiple goroutines.
package store
