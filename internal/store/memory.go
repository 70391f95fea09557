package store

import (
	"context"
	"sync"
	"time"
)

// subscriberBuffer is the per-subscription channel depth. A subscriber
// that falls further behind than this loses messages rather than
// blocking publishers.
const subscriberBuffer = 64

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is a process-local Store implementation.
//
// It honours TTLs, maintains newest-first lists and fans published
// messages out to in-process subscribers. Suitable for tests and
// single-instance deployments.
type Memory struct {
	mu     sync.RWMutex
	kv     map[string]memoryEntry
	lists  map[string][][]byte
	subs   map[string]map[int]chan Message
	nextID int
	closed bool

	// now is an injection point for expiry tests.
	now func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		kv:    make(map[string]memoryEntry),
		lists: make(map[string][][]byte),
		subs:  make(map[string]map[int]chan Message),
		now:   time.Now,
	}
}

// Get returns the value stored at key, or ErrNotFound if the key is
// missing or expired. Expired entries are removed on access.
func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	entry, ok := m.kv[key]
	if !ok {
		return nil, ErrNotFound
	}

	if !entry.expiresAt.IsZero() && m.now().After(entry.expiresAt) {
		delete(m.kv, key)
		return nil, ErrNotFound
	}

	return cloneBytes(entry.value), nil
}

// Set stores value at key, replacing any previous value.
func (m *Memory) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	entry := memoryEntry{value: cloneBytes(value)}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}
	m.kv[key] = entry

	return nil
}

// Delete removes key from both the value and list spaces.
func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	delete(m.kv, key)
	delete(m.lists, key)

	return nil
}

// Push prepends value to the list at key.
func (m *Memory) Push(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	list := m.lists[key]
	next := make([][]byte, 0, len(list)+1)
	next = append(next, cloneBytes(value))
	next = append(next, list...)
	m.lists[key] = next

	return nil
}

// Trim keeps only the first max elements of the list at key.
func (m *Memory) Trim(ctx context.Context, key string, max int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	if max <= 0 {
		delete(m.lists, key)
		return nil
	}

	if list := m.lists[key]; len(list) > max {
		m.lists[key] = list[:max]
	}

	return nil
}

// Range returns list elements from start through stop inclusive,
// newest first. Negative indices count from the end of the list.
func (m *Memory) Range(ctx context.Context, key string, start, stop int) ([][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	list := m.lists[key]
	n := len(list)

	if start < 0 {
		start = n + start
		if start < 0 {
			start = 0
		}
	}
	if stop < 0 {
		stop = n + stop
	}
	if n == 0 || start >= n || stop < 0 || start > stop {
		return [][]byte{}, nil
	}
	if stop >= n {
		stop = n - 1
	}

	out := make([][]byte, 0, stop-start+1)
	for _, v := range list[start : stop+1] {
		out = append(out, cloneBytes(v))
	}

	return out, nil
}

// Publish delivers payload to all current subscribers of channel.
// Subscribers with full buffers miss the message.
func (m *Memory) Publish(ctx context.Context, channel string, payload []byte) error {
	m.mu.RLock()

	if m.closed {
		m.mu.RUnlock()
		return ErrClosed
	}

	// Snapshot receivers so the send loop runs without the lock
	targets := make([]chan Message, 0, len(m.subs[channel]))
	for _, ch := range m.subs[channel] {
		targets = append(targets, ch)
	}
	m.mu.RUnlock()

	msg := Message{Channel: channel, Payload: cloneBytes(payload)}
	for _, ch := range targets {
		select {
		case ch <- msg:
		default:
			// Subscriber buffer full, drop
		}
	}

	return nil
}

// Subscribe registers a subscription to channel. The returned channel
// is closed when ctx is cancelled or the store is closed.
func (m *Memory) Subscribe(ctx context.Context, channel string) (<-chan Message, error) {
	m.mu.Lock()

	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}

	id := m.nextID
	m.nextID++

	ch := make(chan Message, subscriberBuffer)
	if m.subs[channel] == nil {
		m.subs[channel] = make(map[int]chan Message)
	}
	m.subs[channel][id] = ch
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.removeSubscriber(channel, id)
	}()

	return ch, nil
}

// removeSubscriber detaches a subscription. Whichever of ctx
// cancellation or Close wins removes the map entry, and only the
// remover closes the channel.
func (m *Memory) removeSubscriber(channel string, id int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.subs[channel]
	if !ok {
		return
	}
	ch, ok := set[id]
	if !ok {
		return
	}

	delete(set, id)
	if len(set) == 0 {
		delete(m.subs, channel)
	}
	close(ch)
}

// Close terminates all subscriptions and discards all state.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	for _, set := range m.subs {
		for _, ch := range set {
			close(ch)
		}
	}
	m.subs = make(map[string]map[int]chan Message)
	m.kv = make(map[string]memoryEntry)
	m.lists = make(map[string][][]byte)

	return nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
