//go:build integration

package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// Integration tests for the Redis-backed store.
// These tests require a running Redis server at 127.0.0.1:6379.
//
// Run with:
//   go test -tags=integration -v ./internal/store/...

func integrationRedis(t *testing.T) *Redis {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st, err := NewRedis(ctx, RedisOptions{Addr: "127.0.0.1:6379", DB: 15})
	if err != nil {
		t.Fatalf("NewRedis() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	return st
}

func TestIntegration_RedisSetGetTTL(t *testing.T) {
	st := integrationRedis(t)
	ctx := context.Background()

	key := fmt.Sprintf("plantpulse:test:state:%d", time.Now().UnixNano())
	defer st.Delete(ctx, key)

	if err := st.Set(ctx, key, []byte(`{"status":"online"}`), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := st.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != `{"status":"online"}` {
		t.Errorf("Get() = %s, want %s", got, `{"status":"online"}`)
	}

	if _, err := st.Get(ctx, key+":absent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() missing key error = %v, want ErrNotFound", err)
	}
}

func TestIntegration_RedisBoundedList(t *testing.T) {
	st := integrationRedis(t)
	ctx := context.Background()

	key := fmt.Sprintf("plantpulse:test:alerts:%d", time.Now().UnixNano())
	defer st.Delete(ctx, key)

	buf := NewBuffer(st, key, 5)
	for i := 0; i < 12; i++ {
		if err := buf.Push(ctx, []byte(fmt.Sprintf("%d", i))); err != nil {
			t.Fatalf("Push(%d) error = %v", i, err)
		}
	}

	got, err := buf.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("retained %d elements, want 5", len(got))
	}
	if string(got[0]) != "11" {
		t.Errorf("Recent()[0] = %s, want 11 (newest first)", got[0])
	}
}

func TestIntegration_RedisPubSub(t *testing.T) {
	st := integrationRedis(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	channel := fmt.Sprintf("plantpulse:test:relay:%d", time.Now().UnixNano())

	sub, err := st.Subscribe(ctx, channel)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := st.Publish(context.Background(), channel, []byte("relayed")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case msg := <-sub:
		if string(msg.Payload) != "relayed" {
			t.Errorf("Payload = %q, want %q", msg.Payload, "relayed")
		}
	case <-time.After(5 * time.Second):
		t.Error("Timeout waiting for relayed message")
	}

	cancel()

	select {
	case _, ok := <-sub:
		if ok {
			t.Error("expected closed channel after cancel")
		}
	case <-time.After(5 * time.Second):
		t.Error("subscription channel not closed after cancel")
	}
}
