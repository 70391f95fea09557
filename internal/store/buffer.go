package store

import (
	"context"
	"fmt"
)

// Buffer is a bounded newest-first history on a single store list key.
//
// Every Push is followed by a trim back to the cap, so the list never
// grows without bound. The two steps are not atomic across processes:
// under concurrent writers the list can transiently exceed the cap, but
// it converges back once writes quiesce. Readers must not assume an
// exact length.
type Buffer struct {
	store Store
	key   string
	cap   int
}

// NewBuffer creates a bounded buffer over the list at key, keeping at
// most cap elements.
func NewBuffer(s Store, key string, cap int) *Buffer {
	return &Buffer{store: s, key: key, cap: cap}
}

// Push prepends value and trims the list back to the cap.
func (b *Buffer) Push(ctx context.Context, value []byte) error {
	if err := b.store.Push(ctx, b.key, value); err != nil {
		return fmt.Errorf("pushing to %s: %w", b.key, err)
	}
	if err := b.store.Trim(ctx, b.key, b.cap); err != nil {
		return fmt.Errorf("trimming %s: %w", b.key, err)
	}
	return nil
}

// Recent returns up to limit elements, newest first. A limit that is
// zero, negative or beyond the cap returns the full retained history.
func (b *Buffer) Recent(ctx context.Context, limit int) ([][]byte, error) {
	if limit <= 0 || limit > b.cap {
		limit = b.cap
	}
	return b.store.Range(ctx, b.key, 0, limit-1)
}

// Key returns the underlying list key.
func (b *Buffer) Key() string {
	return b.key
}

// Cap returns the configured maximum length.
func (b *Buffer) Cap() int {
	return b.cap
}
