package telemetry

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"

	"github.com/plantpulse/core/internal/store"
)

// StateCache holds the latest known state document per entity.
//
// Writes are full replacements: the stored document is the incoming
// payload plus "device_id" (from the topic, authoritative) and
// "timestamp" (preserved from the payload when present, else stamped
// at write time). Last writer wins; there is no versioning and no
// history. Entries expire after the configured TTL.
//
// The cache talks only to the store; it never touches the message
// broker.
type StateCache struct {
	store store.Store
	ttl   time.Duration

	now func() time.Time // test hook
}

// NewStateCache creates a cache over the given store. Entries written
// through Set expire after ttl.
func NewStateCache(s store.Store, ttl time.Duration) *StateCache {
	return &StateCache{
		store: s,
		ttl:   ttl,
		now:   time.Now,
	}
}

func stateKey(entityID string) string {
	return "state:" + entityID
}

// Set replaces the cached document for an entity.
//
// The fields map is not mutated; the written document carries every
// field verbatim plus the injected device_id and timestamp.
func (c *StateCache) Set(ctx context.Context, entityID string, fields map[string]any) error {
	doc := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		doc[k] = v
	}
	doc["device_id"] = entityID
	if _, ok := doc["timestamp"]; !ok {
		doc["timestamp"] = c.now().UTC().Format(time.RFC3339)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding state for %s: %w", entityID, err)
	}

	if err := c.store.Set(ctx, stateKey(entityID), data, c.ttl); err != nil {
		return fmt.Errorf("writing state for %s: %w", entityID, err)
	}
	return nil
}

// Get returns the cached document for an entity.
// Returns store.ErrNotFound when no entry exists or it has expired.
func (c *StateCache) Get(ctx context.Context, entityID string) (map[string]any, error) {
	data, err := c.store.Get(ctx, stateKey(entityID))
	if err != nil {
		return nil, err
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding state for %s: %w", entityID, err)
	}
	return doc, nil
}
