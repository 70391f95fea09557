// Package fanout delivers pipeline events to connected observers.
//
// The Hub tracks recipients in named rooms. The telemetry pipeline
// emits entity events into the room named after the entity ID, and
// system/broadcast events to every connected recipient regardless of
// room membership. The correlator emits AAS lifecycle events into
// "aas:{category}" rooms.
//
// Delivery is best effort and at most once: a recipient whose send
// buffer is saturated drops the message, and there is no replay for
// late joiners. Rooms are created lazily on the first join and
// garbage-collected when the last member leaves.
//
// Recipients join and leave rooms themselves, typically via the
// WebSocket control messages handled in this package; room membership
// is entirely independent of MQTT subscriptions.
package fanout
