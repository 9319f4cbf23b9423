package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, ok, _ := m.Get(ctx, "missing"); ok {
		t.Fatal("expected miss on empty cache")
	}

	if err := m.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := m.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("expected hit, ok=%v err=%v", ok, err)
	}
	if string(got) != "v" {
		t.Fatalf("got %q", got)
	}

	if err := m.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Fatal("expected miss after delete")
	}
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if err := m.Set(ctx, "k", []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(25 * time.Millisecond)
	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Fatal("expected entry to expire")
	}

	// Zero TTL never expires.
	if err := m.Set(ctx, "forever", []byte("v"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, ok, _ := m.Get(ctx, "forever"); !ok {
		t.Fatal("expected zero-TTL entry to persist")
	}
}

func TestMemoryCopiesValues(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	src := []byte("original")
	_ = m.Set(ctx, "k", src, 0)
	src[0] = 'X'

	got, _, _ := m.Get(ctx, "k")
	if string(got) != "original" {
		t.Fatalf("stored value was aliased: %q", got)
	}

	got[0] = 'Y'
	again, _, _ := m.Get(ctx, "k")
	if string(again) != "original" {
		t.Fatalf("returned value was aliased: %q", again)
	}
}
