package fanout

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/plantpulse/core/internal/infrastructure/metrics"
)

// ============================================================
// Test Doubles
// ============================================================

// fakeRecipient records delivered envelopes in memory.
type fakeRecipient struct {
	mu       sync.Mutex
	received [][]byte
	reject   bool
	closed   bool
}

func (f *fakeRecipient) Deliver(data []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reject {
		return false
	}
	f.received = append(f.received, data)
	return true
}

func (f *fakeRecipient) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeRecipient) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeRecipient) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.received)
}

func (f *fakeRecipient) envelopes(t *testing.T) []Envelope {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]Envelope, 0, len(f.received))
	for _, data := range f.received {
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("decode envelope: %v", err)
		}
		out = append(out, env)
	}
	return out
}

// ============================================================
// Registration
// ============================================================

func TestRegisterAndUnregister(t *testing.T) {
	hub := NewHub()
	a := &fakeRecipient{}
	b := &fakeRecipient{}

	hub.Register(a)
	hub.Register(b)
	if got := hub.ClientCount(); got != 2 {
		t.Fatalf("expected 2 clients, got %d", got)
	}

	hub.Unregister(a)
	if got := hub.ClientCount(); got != 1 {
		t.Fatalf("expected 1 client after unregister, got %d", got)
	}
}

func TestUnregister_UnknownClient(t *testing.T) {
	hub := NewHub()
	hub.Unregister(&fakeRecipient{})

	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestUnregisterRemovesFromAllRooms(t *testing.T) {
	hub := NewHub()
	r := &fakeRecipient{}
	hub.Register(r)
	hub.Join("device-1", r)
	hub.Join("device-2", r)

	hub.Unregister(r)

	if got := hub.RoomCount(); got != 0 {
		t.Fatalf("expected all rooms removed, got %d", got)
	}

	hub.EmitRoom("device-1", map[string]string{"k": "v"})
	if r.count() != 0 {
		t.Fatal("unregistered client should not receive room events")
	}
}

// ============================================================
// Rooms
// ============================================================

func TestJoinCreatesRoomLazily(t *testing.T) {
	hub := NewHub()
	if got := hub.RoomCount(); got != 0 {
		t.Fatalf("expected no rooms initially, got %d", got)
	}

	r := &fakeRecipient{}
	hub.Register(r)
	hub.Join("device-7", r)

	if got := hub.RoomCount(); got != 1 {
		t.Fatalf("expected 1 room, got %d", got)
	}
	if got := hub.RoomSize("device-7"); got != 1 {
		t.Fatalf("expected 1 member, got %d", got)
	}
}

func TestJoinSameRoomTwice(t *testing.T) {
	hub := NewHub()
	r := &fakeRecipient{}
	hub.Register(r)
	hub.Join("device-7", r)
	hub.Join("device-7", r)

	if got := hub.RoomSize("device-7"); got != 1 {
		t.Fatalf("expected 1 member, got %d", got)
	}

	hub.EmitRoom("device-7", map[string]string{"k": "v"})
	if got := r.count(); got != 1 {
		t.Fatalf("expected single delivery, got %d", got)
	}
}

func TestLeaveRemovesEmptyRoom(t *testing.T) {
	hub := NewHub()
	r := &fakeRecipient{}
	hub.Register(r)
	hub.Join("device-7", r)

	hub.Leave("device-7", r)

	if got := hub.RoomCount(); got != 0 {
		t.Fatalf("expected empty room to be removed, got %d rooms", got)
	}
}

func TestLeaveKeepsOccupiedRoom(t *testing.T) {
	hub := NewHub()
	a := &fakeRecipient{}
	b := &fakeRecipient{}
	hub.Register(a)
	hub.Register(b)
	hub.Join("device-7", a)
	hub.Join("device-7", b)

	hub.Leave("device-7", a)

	if got := hub.RoomCount(); got != 1 {
		t.Fatalf("expected room to survive, got %d rooms", got)
	}
	if got := hub.RoomSize("device-7"); got != 1 {
		t.Fatalf("expected 1 remaining member, got %d", got)
	}
}

func TestLeave_UnknownRoom(t *testing.T) {
	hub := NewHub()
	hub.Leave("no-such-room", &fakeRecipient{})
}

// ============================================================
// Room Emission
// ============================================================

func TestEmitRoomDeliversToMembersOnly(t *testing.T) {
	hub := NewHub()
	member := &fakeRecipient{}
	outsider := &fakeRecipient{}
	hub.Register(member)
	hub.Register(outsider)
	hub.Join("device-7", member)

	hub.EmitRoom("device-7", map[string]string{"status": "online"})

	if got := member.count(); got != 1 {
		t.Fatalf("expected member to receive 1 event, got %d", got)
	}
	if got := outsider.count(); got != 0 {
		t.Fatalf("expected outsider to receive nothing, got %d", got)
	}
}

func TestEmitRoom_UnknownRoom(t *testing.T) {
	hub := NewHub()
	r := &fakeRecipient{}
	hub.Register(r)

	hub.EmitRoom("no-such-room", map[string]string{"k": "v"})

	if r.count() != 0 {
		t.Fatal("expected no delivery for unknown room")
	}
}

func TestEmitRoomEnvelope(t *testing.T) {
	hub := NewHub()
	r := &fakeRecipient{}
	hub.Register(r)
	hub.Join("device-7", r)

	hub.EmitRoom("device-7", map[string]string{"status": "online"})

	envs := r.envelopes(t)
	if len(envs) != 1 {
		t.Fatalf("expected 1 envelope, got %d", len(envs))
	}
	env := envs[0]
	if env.Type != TypeEvent {
		t.Errorf("expected type %q, got %q", TypeEvent, env.Type)
	}
	if env.Room != "device-7" {
		t.Errorf("expected room device-7, got %q", env.Room)
	}
	if env.Scope != "" {
		t.Errorf("expected no scope on room envelope, got %q", env.Scope)
	}
	if _, err := time.Parse(time.RFC3339, env.Timestamp); err != nil {
		t.Errorf("timestamp not RFC3339: %q", env.Timestamp)
	}

	payload, ok := env.Event.(map[string]any)
	if !ok {
		t.Fatalf("expected event payload object, got %T", env.Event)
	}
	if payload["status"] != "online" {
		t.Errorf("expected status online, got %v", payload["status"])
	}
}

// ============================================================
// Global Emission
// ============================================================

func TestEmitAllReachesEveryClient(t *testing.T) {
	hub := NewHub()
	inRoom := &fakeRecipient{}
	roomless := &fakeRecipient{}
	hub.Register(inRoom)
	hub.Register(roomless)
	hub.Join("device-7", inRoom)

	hub.EmitAll(map[string]string{"subtype": "maintenance"})

	if got := inRoom.count(); got != 1 {
		t.Fatalf("expected room member to receive broadcast, got %d", got)
	}
	if got := roomless.count(); got != 1 {
		t.Fatalf("expected roomless client to receive broadcast, got %d", got)
	}
}

func TestEmitAllEnvelopeScope(t *testing.T) {
	hub := NewHub()
	r := &fakeRecipient{}
	hub.Register(r)

	hub.EmitAll(map[string]string{"subtype": "announce"})

	envs := r.envelopes(t)
	if len(envs) != 1 {
		t.Fatalf("expected 1 envelope, got %d", len(envs))
	}
	if envs[0].Scope != ScopeGlobal {
		t.Errorf("expected scope %q, got %q", ScopeGlobal, envs[0].Scope)
	}
	if envs[0].Room != "" {
		t.Errorf("expected no room on broadcast, got %q", envs[0].Room)
	}
}

// ============================================================
// Best-Effort Delivery
// ============================================================

func TestSlowClientDroppedNotBlocking(t *testing.T) {
	hub := NewHub()
	healthy := &fakeRecipient{}
	slow := &fakeRecipient{reject: true}
	hub.Register(healthy)
	hub.Register(slow)
	hub.Join("device-7", healthy)
	hub.Join("device-7", slow)

	done := make(chan struct{})
	go func() {
		hub.EmitRoom("device-7", map[string]string{"k": "v"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("EmitRoom blocked on a slow client")
	}

	if got := healthy.count(); got != 1 {
		t.Fatalf("expected healthy client to receive event, got %d", got)
	}
	if got := slow.count(); got != 0 {
		t.Fatalf("expected slow client to be skipped, got %d", got)
	}
}

func TestDroppedDeliveryCounted(t *testing.T) {
	hub := NewHub()
	reg := metrics.NewRegistry()
	hub.SetMetrics(reg)

	ok := &fakeRecipient{}
	bad := &fakeRecipient{reject: true}
	hub.Register(ok)
	hub.Register(bad)
	hub.Join("device-7", ok)
	hub.Join("device-7", bad)

	hub.EmitRoom("device-7", map[string]string{"k": "v"})

	srv := httptest.NewServer(reg.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), "plantpulse_fanout_delivered_total 1") {
		t.Error("expected 1 delivered fan-out message in metrics")
	}
	if !strings.Contains(string(body), "plantpulse_fanout_dropped_total 1") {
		t.Error("expected 1 dropped fan-out message in metrics")
	}
}

// ============================================================
// Lifecycle
// ============================================================

func TestRunClosesClientsOnShutdown(t *testing.T) {
	hub := NewHub()
	r := &fakeRecipient{}
	hub.Register(r)
	hub.Join("device-7", r)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if !r.isClosed() {
		t.Error("expected recipient to be closed on shutdown")
	}
	if got := hub.ClientCount(); got != 0 {
		t.Errorf("expected 0 clients after shutdown, got %d", got)
	}
	if got := hub.RoomCount(); got != 0 {
		t.Errorf("expected 0 rooms after shutdown, got %d", got)
	}
}

func TestConcurrentEmitAndMembership(t *testing.T) {
	hub := NewHub()
	r := &fakeRecipient{}
	hub.Register(r)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				hub.Join("device-7", r)
				hub.Leave("device-7", r)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				hub.EmitRoom("device-7", map[string]string{"k": "v"})
				hub.EmitAll(map[string]string{"k": "v"})
			}
		}()
	}
	wg.Wait()
}
