package store

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by Store implementations.
var (
	// ErrNotFound indicates the requested key does not exist or has expired.
	ErrNotFound = errors.New("store: key not found")

	// ErrClosed indicates the store has been closed.
	ErrClosed = errors.New("store: closed")
)

// Message is a single payload received on a pub/sub channel.
type Message struct {
	Channel string
	Payload []byte
}

// Store is the single-key state boundary shared by the telemetry pipeline
// and the event correlator.
//
// Implementations guarantee per-key atomicity only. Compound operations
// such as push-then-trim are not atomic across processes; bounded lists
// may transiently exceed their cap under concurrent writers.
type Store interface {
	// Get returns the value stored at key. Returns ErrNotFound if the
	// key does not exist or its TTL has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value at key, replacing any previous value. A ttl of
	// zero means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Push prepends value to the list at key, so index 0 is always the
	// most recent element.
	Push(ctx context.Context, key string, value []byte) error

	// Trim discards all list elements at key beyond the first max.
	Trim(ctx context.Context, key string, max int) error

	// Range returns list elements from index start through stop
	// inclusive, newest first. Negative stop counts from the end, -1
	// meaning the last element. A missing key yields an empty slice.
	Range(ctx context.Context, key string, start, stop int) ([][]byte, error)

	// Publish delivers payload to all current subscribers of channel.
	// Delivery is best-effort fan-out, not queued.
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe returns a channel of messages published to channel.
	// The subscription ends and the returned channel is closed when ctx
	// is cancelled or the store is closed.
	Subscribe(ctx context.Context, channel string) (<-chan Message, error)

	// Close releases all resources and terminates active subscriptions.
	Close() error
}
