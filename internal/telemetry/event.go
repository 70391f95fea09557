package telemetry

import "time"

// Kind classifies an inbound telemetry message. Exactly one handler
// exists per kind.
type Kind string

const (
	// KindData is a batch of sensor readings.
	KindData Kind = "data"

	// KindStatus is a device status document.
	KindStatus Kind = "status"

	// KindAlert is a device-raised alert.
	KindAlert Kind = "alert"

	// KindConfig is a configuration push.
	KindConfig Kind = "config"

	// KindSystem is a platform-wide system message.
	KindSystem Kind = "system"

	// KindBroadcast is an operator broadcast.
	KindBroadcast Kind = "broadcast"
)

// Event is one successfully parsed message flowing through the
// pipeline. The router creates it once per message; handlers treat it
// as immutable.
//
// EntityID is empty for system and broadcast events; their subtype is
// carried inside Payload under "subtype".
type Event struct {
	EntityID    string         `json:"entity_id,omitempty"`
	Kind        Kind           `json:"kind"`
	Payload     map[string]any `json:"payload"`
	ReceivedAt  time.Time      `json:"received_at"`
	SourceTopic string         `json:"source_topic"`
}
