package telemetry

import (
	"fmt"
	"strings"
)

// Reserved second-segment categories. An entity can never be named
// after one of these.
const (
	SegmentSystem    = "system"
	SegmentBroadcast = "broadcast"
)

// Kind segments as they appear on the wire.
const (
	segmentData   = "data"
	segmentStatus = "status"
	segmentAlerts = "alerts"
	segmentConfig = "config"
)

// Topics provides builders and the parser for the namespace topic tree.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := telemetry.NewTopics("iiot")
//	topics.Data("device-7")   // "iiot/device-7/data"
//	topics.AllData()          // "iiot/+/data"
type Topics struct {
	ns string
}

// NewTopics creates a topic scheme rooted at the given namespace.
func NewTopics(namespace string) Topics {
	return Topics{ns: namespace}
}

// Namespace returns the root segment of the scheme.
func (t Topics) Namespace() string {
	return t.ns
}

// =============================================================================
// Entity Topics
// =============================================================================

// Data returns the sensor readings topic for an entity.
//
// Example: iiot/device-7/data
func (t Topics) Data(entityID string) string {
	return fmt.Sprintf("%s/%s/%s", t.ns, entityID, segmentData)
}

// Status returns the status topic for an entity.
//
// Example: iiot/device-7/status
func (t Topics) Status(entityID string) string {
	return fmt.Sprintf("%s/%s/%s", t.ns, entityID, segmentStatus)
}

// Alerts returns the alerts topic for an entity.
//
// Example: iiot/device-7/alerts
func (t Topics) Alerts(entityID string) string {
	return fmt.Sprintf("%s/%s/%s", t.ns, entityID, segmentAlerts)
}

// Config returns the configuration topic for an entity.
//
// Example: iiot/device-7/config
func (t Topics) Config(entityID string) string {
	return fmt.Sprintf("%s/%s/%s", t.ns, entityID, segmentConfig)
}

// =============================================================================
// Category Topics
// =============================================================================

// System returns the topic for a system message subtype.
//
// Example: iiot/system/maintenance
func (t Topics) System(subtype string) string {
	return fmt.Sprintf("%s/%s/%s", t.ns, SegmentSystem, subtype)
}

// Broadcast returns the topic for a broadcast subtype.
//
// Example: iiot/broadcast/announcement
func (t Topics) Broadcast(subtype string) string {
	return fmt.Sprintf("%s/%s/%s", t.ns, SegmentBroadcast, subtype)
}

// SystemStatus returns the presence topic used for the service's own
// online/offline/LWT messages.
//
// Example: iiot/system/status
func (t Topics) SystemStatus() string {
	return t.System(segmentStatus)
}

// =============================================================================
// Subscription Patterns
// =============================================================================

// AllData returns the pattern matching every entity's data topic.
//
// Example: iiot/+/data
func (t Topics) AllData() string {
	return fmt.Sprintf("%s/+/%s", t.ns, segmentData)
}

// AllStatus returns the pattern matching every entity's status topic.
//
// Example: iiot/+/status
func (t Topics) AllStatus() string {
	return fmt.Sprintf("%s/+/%s", t.ns, segmentStatus)
}

// AllAlerts returns the pattern matching every entity's alerts topic.
//
// Example: iiot/+/alerts
func (t Topics) AllAlerts() string {
	return fmt.Sprintf("%s/+/%s", t.ns, segmentAlerts)
}

// AllConfig returns the pattern matching every entity's config topic.
//
// Example: iiot/+/config
func (t Topics) AllConfig() string {
	return fmt.Sprintf("%s/+/%s", t.ns, segmentConfig)
}

// AllSystem returns the pattern matching every system subtype.
//
// Example: iiot/system/+
func (t Topics) AllSystem() string {
	return fmt.Sprintf("%s/%s/+", t.ns, SegmentSystem)
}

// AllBroadcast returns the pattern matching every broadcast subtype.
//
// Example: iiot/broadcast/+
func (t Topics) AllBroadcast() string {
	return fmt.Sprintf("%s/%s/+", t.ns, SegmentBroadcast)
}

// =============================================================================
// Parsing
// =============================================================================

// Route is the classification of an inbound topic.
//
// EntityID is set for entity topics; Subtype is set for system and
// broadcast topics. The two are mutually exclusive.
type Route struct {
	Kind     Kind
	EntityID string
	Subtype  string
}

// Parse classifies a concrete topic against the scheme.
//
// Returns ErrInvalidTopic when the topic is outside the namespace, has
// the wrong depth, or contains empty segments, and ErrUnknownKind when
// the kind segment is not recognised.
func (t Topics) Parse(topic string) (Route, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 {
		return Route{}, fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	if parts[0] != t.ns || parts[1] == "" || parts[2] == "" {
		return Route{}, fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}

	switch parts[1] {
	case SegmentSystem:
		return Route{Kind: KindSystem, Subtype: parts[2]}, nil
	case SegmentBroadcast:
		return Route{Kind: KindBroadcast, Subtype: parts[2]}, nil
	}

	switch parts[2] {
	case segmentData:
		return Route{Kind: KindData, EntityID: parts[1]}, nil
	case segmentStatus:
		return Route{Kind: KindStatus, EntityID: parts[1]}, nil
	case segmentAlerts:
		return Route{Kind: KindAlert, EntityID: parts[1]}, nil
	case segmentConfig:
		return Route{Kind: KindConfig, EntityID: parts[1]}, nil
	}

	return Route{}, fmt.Errorf("%w: %q in %q", ErrUnknownKind, parts[2], topic)
}
