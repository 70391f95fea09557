package correlator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// Category identifies one class of asset administration shell events.
type Category string

const (
	// CategoryShell covers lifecycle events of asset shells themselves.
	CategoryShell Category = "shell"

	// CategorySubmodel covers submodel create/update/delete events.
	CategorySubmodel Category = "submodel"

	// CategoryRegistry covers registry descriptor events.
	CategoryRegistry Category = "registry"

	// CategoryDiscovery covers asset-link discovery events.
	CategoryDiscovery Category = "discovery"
)

// Default topic prefixes, overridable via Options.Prefixes.
const (
	defaultShellPrefix     = "shells"
	defaultSubmodelPrefix  = "submodels"
	defaultRegistryPrefix  = "registry"
	defaultDiscoveryPrefix = "discovery"
)

// topicEventSegment is the fixed third segment of every event topic.
const topicEventSegment = "events"

// categoryOrder fixes the iteration order for subscriptions and merges.
var categoryOrder = []Category{
	CategoryShell,
	CategorySubmodel,
	CategoryRegistry,
	CategoryDiscovery,
}

// Categories returns every known category in a stable order.
func Categories() []Category {
	out := make([]Category, len(categoryOrder))
	copy(out, categoryOrder)
	return out
}

// ParseCategory maps a string onto a known Category.
func ParseCategory(s string) (Category, bool) {
	switch Category(strings.ToLower(s)) {
	case CategoryShell:
		return CategoryShell, true
	case CategorySubmodel:
		return CategorySubmodel, true
	case CategoryRegistry:
		return CategoryRegistry, true
	case CategoryDiscovery:
		return CategoryDiscovery, true
	}
	return "", false
}

// Prefixes maps each category to the first segment of its topics.
// Empty fields fall back to the defaults.
type Prefixes struct {
	Shell     string
	Submodel  string
	Registry  string
	Discovery string
}

func (p Prefixes) withDefaults() Prefixes {
	if p.Shell == "" {
		p.Shell = defaultShellPrefix
	}
	if p.Submodel == "" {
		p.Submodel = defaultSubmodelPrefix
	}
	if p.Registry == "" {
		p.Registry = defaultRegistryPrefix
	}
	if p.Discovery == "" {
		p.Discovery = defaultDiscoveryPrefix
	}
	return p
}

func (p Prefixes) forCategory(cat Category) string {
	switch cat {
	case CategoryShell:
		return p.Shell
	case CategorySubmodel:
		return p.Submodel
	case CategoryRegistry:
		return p.Registry
	case CategoryDiscovery:
		return p.Discovery
	}
	return ""
}

// Event is one classified asset event.
//
// Timestamp is assigned at classification time, not taken from the
// payload; payload-embedded timestamps ride along untouched.
type Event struct {
	Category  Category       `json:"category"`
	ElementID string         `json:"element_id"`
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// EventRoom returns the fan-out room carrying one category's events.
// Rooms are prefixed so they never collide with entity rooms on a
// shared hub.
func EventRoom(cat Category) string {
	return "aas:" + string(cat)
}

// eventKey is the store list holding one category's recent history.
func eventKey(cat Category) string {
	return "events:" + string(cat)
}

// splitEventTopic breaks a {prefix}/{id}/events/{eventType} topic into
// its parts. ok is false for any other shape.
func splitEventTopic(topic string) (prefix, elementID, eventType string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[2] != topicEventSegment {
		return "", "", "", false
	}
	for _, p := range parts {
		if p == "" {
			return "", "", "", false
		}
	}
	return parts[0], parts[1], parts[3], true
}

// handleEventMessage classifies one broker message, persists it to the
// category history and publishes it on the relay channel.
//
// Failures never propagate: a bad message is logged and dropped, a
// store failure is logged, and the next message is processed normally.
func (c *Correlator) handleEventMessage(ctx context.Context, topic string, payload []byte) error {
	prefix, elementID, eventType, ok := splitEventTopic(topic)
	if !ok {
		c.logger.Warn("dropping unroutable event topic", "topic", topic)
		c.recordDrop("topic")
		return nil
	}

	b, ok := c.byPrefix[prefix]
	if !ok {
		c.logger.Warn("dropping event with unknown category prefix", "topic", topic)
		c.recordDrop("category")
		return nil
	}

	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		c.logger.Warn("dropping malformed event payload", "topic", topic, "error", err)
		c.recordDrop("payload")
		return nil
	}

	ev := Event{
		Category:  b.category,
		ElementID: elementID,
		EventType: eventType,
		Payload:   fields,
		Timestamp: c.now().UTC(),
	}

	data, err := json.Marshal(ev)
	if err != nil {
		c.logger.Error("failed to encode event", "topic", topic, "error", err)
		return nil
	}

	if err := b.buffer.Push(ctx, data); err != nil {
		c.logger.Error("failed to persist event history",
			"category", b.category, "error", err)
		c.recordDrop("store")
	}

	// Local emission happens through the relay subscription like every
	// other instance's, so clients see a single consistent stream.
	if err := c.store.Publish(ctx, c.relayChannel, data); err != nil {
		c.logger.Warn("relay publish failed", "channel", c.relayChannel, "error", err)
	}

	if c.metrics != nil {
		c.metrics.RecordCorrelatorEvent(string(b.category))
	}

	c.logger.Debug("classified event",
		"category", b.category,
		"element_id", elementID,
		"event_type", eventType,
	)
	return nil
}

// defaultRecentLimit bounds RecentEvents when the caller passes no limit.
const defaultRecentLimit = 100

// RecentEvents returns the newest events across the requested
// categories, newest first, truncated to limit. An empty category list
// selects all categories. Corrupt history entries are skipped.
func (c *Correlator) RecentEvents(ctx context.Context, categories []Category, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}

	want := make(map[Category]bool, len(categories))
	for _, cat := range categories {
		want[cat] = true
	}

	merged := make([]Event, 0, limit)
	for _, b := range c.bindings {
		if len(want) > 0 && !want[b.category] {
			continue
		}
		entries, err := b.buffer.Recent(ctx, limit)
		if err != nil {
			return nil, fmt.Errorf("reading %s event history: %w", b.category, err)
		}
		for _, raw := range entries {
			var ev Event
			if err := json.Unmarshal(raw, &ev); err != nil {
				c.logger.Warn("skipping corrupt event history entry",
					"category", b.category, "error", err)
				continue
			}
			merged = append(merged, ev)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp.After(merged[j].Timestamp)
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}
