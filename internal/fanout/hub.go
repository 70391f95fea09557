package fanout

import (
	"context"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/plantpulse/core/internal/infrastructure/metrics"
)

// Envelope type and scope constants.
const (
	TypeEvent = "event"

	// ScopeGlobal marks envelopes delivered to every connected
	// recipient rather than a single room.
	ScopeGlobal = "global"
)

// Recipient receives fan-out deliveries.
//
// Deliver queues one encoded envelope and reports false when the
// message had to be dropped (saturated buffer, recipient gone).
// Implementations must never block.
type Recipient interface {
	Deliver(data []byte) bool
}

// Logger defines the logging interface used by the Hub.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Envelope is the wire format for every fan-out delivery.
// Room is set for room emissions, Scope for global ones.
type Envelope struct {
	Type      string `json:"type"`
	Room      string `json:"room,omitempty"`
	Scope     string `json:"scope,omitempty"`
	Event     any    `json:"event"`
	Timestamp string `json:"timestamp"`
}

// Hub manages recipients and their room memberships.
//
// Thread Safety: all methods are safe for concurrent use. Emissions
// snapshot the member set under the lock and deliver outside it, so a
// slow recipient never stalls the hub.
type Hub struct {
	mu      sync.RWMutex
	clients map[Recipient]struct{}
	rooms   map[string]map[Recipient]struct{}

	logger  Logger
	metrics *metrics.Registry
	now     func() time.Time // test hook
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[Recipient]struct{}),
		rooms:   make(map[string]map[Recipient]struct{}),
		logger:  noopLogger{},
		now:     time.Now,
	}
}

// SetLogger sets the logger for the hub.
func (h *Hub) SetLogger(logger Logger) {
	h.logger = logger
}

// SetMetrics sets the optional metrics registry.
func (h *Hub) SetMetrics(m *metrics.Registry) {
	h.metrics = m
}

// Run blocks until the context is cancelled, then disconnects all
// recipients.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a recipient to the connected set. Global emissions
// reach it immediately; room emissions only after it joins rooms.
func (h *Hub) Register(r Recipient) {
	h.mu.Lock()
	h.clients[r] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.WSClientConnected()
	}
	h.logger.Debug("recipient connected", "clients", count)
}

// Unregister removes a recipient from the connected set and from
// every room it joined, garbage-collecting rooms left empty.
func (h *Hub) Unregister(r Recipient) {
	h.mu.Lock()
	_, existed := h.clients[r]
	delete(h.clients, r)
	for name, members := range h.rooms {
		delete(members, r)
		if len(members) == 0 {
			delete(h.rooms, name)
		}
	}
	count := len(h.clients)
	h.mu.Unlock()

	if !existed {
		return
	}
	if h.metrics != nil {
		h.metrics.WSClientDisconnected()
	}
	h.logger.Debug("recipient disconnected", "clients", count)
}

// Join adds a recipient to a room, creating the room on first use.
// Joining twice is a no-op; joining without Register is allowed and
// only affects room emissions.
func (h *Hub) Join(room string, r Recipient) {
	h.mu.Lock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[Recipient]struct{})
		h.rooms[room] = members
	}
	members[r] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("recipient joined room", "room", room)
}

// Leave removes a recipient from a room. The room is deleted when its
// last member leaves.
func (h *Hub) Leave(room string, r Recipient) {
	h.mu.Lock()
	if members, ok := h.rooms[room]; ok {
		delete(members, r)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	h.mu.Unlock()

	h.logger.Debug("recipient left room", "room", room)
}

// EmitRoom delivers an event to every member of a room. Unknown rooms
// are a silent no-op.
func (h *Hub) EmitRoom(room string, event any) {
	data, ok := h.encode(Envelope{
		Type:      TypeEvent,
		Room:      room,
		Event:     event,
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
	if !ok {
		return
	}

	h.mu.RLock()
	members := make([]Recipient, 0, len(h.rooms[room]))
	for r := range h.rooms[room] {
		members = append(members, r)
	}
	h.mu.RUnlock()

	h.deliver(members, data)
}

// EmitAll delivers an event to every connected recipient.
func (h *Hub) EmitAll(event any) {
	data, ok := h.encode(Envelope{
		Type:      TypeEvent,
		Scope:     ScopeGlobal,
		Event:     event,
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
	if !ok {
		return
	}

	h.mu.RLock()
	recipients := make([]Recipient, 0, len(h.clients))
	for r := range h.clients {
		recipients = append(recipients, r)
	}
	h.mu.RUnlock()

	h.deliver(recipients, data)
}

// ClientCount returns the number of connected recipients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomCount returns the number of live rooms.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// RoomSize returns the number of members in a room, zero for unknown
// rooms.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) encode(env Envelope) ([]byte, bool) {
	data, err := json.Marshal(env)
	if err != nil {
		h.logger.Error("failed to encode envelope", "error", err)
		return nil, false
	}
	return data, true
}

func (h *Hub) deliver(recipients []Recipient, data []byte) {
	delivered, dropped := 0, 0
	for _, r := range recipients {
		if r.Deliver(data) {
			delivered++
		} else {
			dropped++
		}
	}

	if h.metrics != nil {
		h.metrics.RecordFanout(delivered, dropped)
	}
	if dropped > 0 {
		h.logger.Debug("fan-out dropped messages", "delivered", delivered, "dropped", dropped)
	}
}

// closeAll disconnects every recipient and clears all rooms.
func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := make([]Recipient, 0, len(h.clients))
	for r := range h.clients {
		clients = append(clients, r)
	}
	h.clients = make(map[Recipient]struct{})
	h.rooms = make(map[string]map[Recipient]struct{})
	h.mu.Unlock()

	for _, r := range clients {
		if closer, ok := r.(interface{ Close() }); ok {
			closer.Close()
		}
		if h.metrics != nil {
			h.metrics.WSClientDisconnected()
		}
	}

	h.logger.Info("fan-out hub closed", "clients", len(clients))
}
