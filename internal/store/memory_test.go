package store

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemory_SetGet(t *testing.T) {
	st := NewMemory()
	defer st.Close()
	ctx := context.Background()

	if err := st.Set(ctx, "state:device-1", []byte(`{"status":"online"}`), 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := st.Get(ctx, "state:device-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if !bytes.Equal(got, []byte(`{"status":"online"}`)) {
		t.Errorf("Get() = %s, want %s", got, `{"status":"online"}`)
	}
}

func TestMemory_GetMissing(t *testing.T) {
	st := NewMemory()
	defer st.Close()

	_, err := st.Get(context.Background(), "absent")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestMemory_SetReplaces(t *testing.T) {
	st := NewMemory()
	defer st.Close()
	ctx := context.Background()

	st.Set(ctx, "k", []byte("first"), 0)
	st.Set(ctx, "k", []byte("second"), 0)

	got, err := st.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != "second" {
		t.Errorf("Get() = %q, want %q (last writer wins)", got, "second")
	}
}

func TestMemory_TTLExpiry(t *testing.T) {
	st := NewMemory()
	defer st.Close()
	ctx := context.Background()

	base := time.Now()
	st.now = func() time.Time { return base }

	if err := st.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if _, err := st.Get(ctx, "k"); err != nil {
		t.Fatalf("Get() before expiry error = %v", err)
	}

	st.now = func() time.Time { return base.Add(2 * time.Minute) }

	if _, err := st.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after expiry error = %v, want ErrNotFound", err)
	}
}

func TestMemory_Delete(t *testing.T) {
	st := NewMemory()
	defer st.Close()
	ctx := context.Background()

	st.Set(ctx, "k", []byte("v"), 0)
	if err := st.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if _, err := st.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}

	// Deleting a missing key is not an error
	if err := st.Delete(ctx, "absent"); err != nil {
		t.Errorf("Delete() on missing key error = %v", err)
	}
}

func TestMemory_PushOrdering(t *testing.T) {
	st := NewMemory()
	defer st.Close()
	ctx := context.Background()

	for _, v := range []string{"a", "b", "c"} {
		if err := st.Push(ctx, "list", []byte(v)); err != nil {
			t.Fatalf("Push(%q) error = %v", v, err)
		}
	}

	got, err := st.Range(ctx, "list", 0, -1)
	if err != nil {
		t.Fatalf("Range() error = %v", err)
	}

	want := []string{"c", "b", "a"}
	if len(got) != len(want) {
		t.Fatalf("Range() returned %d elements, want %d", len(got), len(want))
	}
	for i, w := range want {
		if string(got[i]) != w {
			t.Errorf("Range()[%d] = %q, want %q (newest first)", i, got[i], w)
		}
	}
}

func TestMemory_Trim(t *testing.T) {
	st := NewMemory()
	defer st.Close()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		st.Push(ctx, "list", []byte{byte('0' + i)})
	}

	if err := st.Trim(ctx, "list", 3); err != nil {
		t.Fatalf("Trim() error = %v", err)
	}

	got, _ := st.Range(ctx, "list", 0, -1)
	if len(got) != 3 {
		t.Fatalf("after Trim(3) list has %d elements, want 3", len(got))
	}

	// The newest three survive
	want := []string{"4", "3", "2"}
	for i, w := range want {
		if string(got[i]) != w {
			t.Errorf("after trim [%d] = %q, want %q", i, got[i], w)
		}
	}
}

func TestMemory_TrimToZeroDropsList(t *testing.T) {
	st := NewMemory()
	defer st.Close()
	ctx := context.Background()

	st.Push(ctx, "list", []byte("x"))
	if err := st.Trim(ctx, "list", 0); err != nil {
		t.Fatalf("Trim(0) error = %v", err)
	}

	got, _ := st.Range(ctx, "list", 0, -1)
	if len(got) != 0 {
		t.Errorf("after Trim(0) list has %d elements, want 0", len(got))
	}
}

func TestMemory_Range(t *testing.T) {
	st := NewMemory()
	defer st.Close()
	ctx := context.Background()

	// List becomes [e d c b a]
	for _, v := range []string{"a", "b", "c", "d", "e"} {
		st.Push(ctx, "list", []byte(v))
	}

	tests := []struct {
		name  string
		start int
		stop  int
		want  []string
	}{
		{
			name:  "full list",
			start: 0,
			stop:  -1,
			want:  []string{"e", "d", "c", "b", "a"},
		},
		{
			name:  "first three",
			start: 0,
			stop:  2,
			want:  []string{"e", "d", "c"},
		},
		{
			name:  "middle slice",
			start: 1,
			stop:  3,
			want:  []string{"d", "c", "b"},
		},
		{
			name:  "stop beyond end clamps",
			start: 3,
			stop:  100,
			want:  []string{"b", "a"},
		},
		{
			name:  "negative start from end",
			start: -2,
			stop:  -1,
			want:  []string{"b", "a"},
		},
		{
			name:  "start beyond end",
			start: 10,
			stop:  20,
			want:  []string{},
		},
		{
			name:  "inverted range",
			start: 3,
			stop:  1,
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := st.Range(ctx, "list", tt.start, tt.stop)
			if err != nil {
				t.Fatalf("Range(%d, %d) error = %v", tt.start, tt.stop, err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Range(%d, %d) returned %d elements, want %d", tt.start, tt.stop, len(got), len(tt.want))
			}
			for i, w := range tt.want {
				if string(got[i]) != w {
					t.Errorf("Range(%d, %d)[%d] = %q, want %q", tt.start, tt.stop, i, got[i], w)
				}
			}
		})
	}
}

func TestMemory_RangeMissingKey(t *testing.T) {
	st := NewMemory()
	defer st.Close()

	got, err := st.Range(context.Background(), "absent", 0, -1)
	if err != nil {
		t.Fatalf("Range() on missing key error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Range() on missing key returned %d elements, want 0", len(got))
	}
}

func TestMemory_PublishSubscribe(t *testing.T) {
	st := NewMemory()
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := st.Subscribe(ctx, "events")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := st.Publish(context.Background(), "events", []byte("hello")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case msg := <-sub:
		if msg.Channel != "events" {
			t.Errorf("msg.Channel = %q, want %q", msg.Channel, "events")
		}
		if string(msg.Payload) != "hello" {
			t.Errorf("msg.Payload = %q, want %q", msg.Payload, "hello")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

func TestMemory_PublishToOtherChannelNotDelivered(t *testing.T) {
	st := NewMemory()
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, _ := st.Subscribe(ctx, "events")
	st.Publish(context.Background(), "other", []byte("x"))

	select {
	case msg := <-sub:
		t.Fatalf("unexpected message on %q: %s", msg.Channel, msg.Payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemory_SubscribeCancelClosesChannel(t *testing.T) {
	st := NewMemory()
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := st.Subscribe(ctx, "events")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	cancel()

	select {
	case _, ok := <-sub:
		if ok {
			t.Error("expected closed channel after cancel, got message")
		}
	case <-time.After(time.Second):
		t.Fatal("subscription channel not closed after context cancel")
	}
}

func TestMemory_CloseTerminatesSubscriptions(t *testing.T) {
	st := NewMemory()

	sub, err := st.Subscribe(context.Background(), "events")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := st.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	select {
	case _, ok := <-sub:
		if ok {
			t.Error("expected closed channel after Close, got message")
		}
	case <-time.After(time.Second):
		t.Fatal("subscription channel not closed after store Close")
	}

	if _, err := st.Get(context.Background(), "k"); !errors.Is(err, ErrClosed) {
		t.Errorf("Get() after Close error = %v, want ErrClosed", err)
	}
}

func TestMemory_ValueIsolation(t *testing.T) {
	st := NewMemory()
	defer st.Close()
	ctx := context.Background()

	src := []byte("original")
	st.Set(ctx, "k", src, 0)
	src[0] = 'X'

	got, _ := st.Get(ctx, "k")
	if string(got) != "original" {
		t.Errorf("stored value mutated through caller slice: %q", got)
	}

	got[0] = 'Y'
	again, _ := st.Get(ctx, "k")
	if string(again) != "original" {
		t.Errorf("stored value mutated through returned slice: %q", again)
	}
}
