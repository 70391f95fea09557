// Package correlator runs the secondary broker session: it watches the
// asset administration shell (AAS) topic space, classifies every event
// into a category, keeps a capped per-category history, and relays the
// stream across all PlantPulse instances.
//
// # Topic Scheme
//
// Four wildcard patterns, one per category, each shaped
// {prefix}/{elementId}/events/{eventType}:
//
//	shells/+/events/+      shell lifecycle events
//	submodels/+/events/+   submodel create/update/delete
//	registry/+/events/+    registry descriptor events
//	discovery/+/events/+   asset-link discovery events
//
// Prefixes are configurable; categories are fixed. Classification is by
// first segment only.
//
// # Bounded Reconnect
//
// The session never reconnects forever. Connect failures are retried
// with exponential backoff (base 5s, doubling) up to a budget of 10
// retries after the initial attempt; spending the budget parks the
// correlator in the terminal StateFailed until it is stopped and
// started again. This is deliberately stricter than the primary
// session's indefinite background reconnect, because the AAS stream is
// an auxiliary data source and a permanently absent broker should
// surface as a health problem instead of a silent retry loop.
//
// # Cross-Process Relay
//
// Classified events are published on a shared store channel rather than
// emitted to the local hub directly. Every instance consumes that
// channel and forwards events to its own hub rooms ("aas:" + category),
// so horizontally scaled deployments present one consistent stream no
// matter which broker session received the original message.
package correlator
