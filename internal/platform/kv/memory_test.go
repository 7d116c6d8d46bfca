package kv_test

import (
	"context"
	"testing"
	"time"

	"nafbridge/internal/platform/clock"
	"nafbridge/internal/platform/kv"
)

func TestMemorySetGetTTL(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(time.Unix(1_700_000_000, 0))
	m := kv.NewMemoryWithClock(clk)

	if err := m.Set(ctx, "sync:task_1", []byte(`{"state":"processing"}`), time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}

	v, ok, err := m.Get(ctx, "sync:task_1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if string(v) != `{"state":"processing"}` {
		t.Fatalf("unexpected value: %s", v)
	}

	clk.Advance(time.Hour + time.Second)
	if _, ok, _ := m.Get(ctx, "sync:task_1"); ok {
		t.Fatalf("expired key should be absent")
	}
}

func TestMemoryKeysPrefix(t *testing.T) {
	ctx := context.Background()
	m := kv.NewMemory()

	_ = m.Set(ctx, "sync:a", []byte("1"), 0)
	_ = m.Set(ctx, "sync:b", []byte("2"), 0)
	_ = m.Set(ctx, "metrics:performance", []byte("3"), 0)

	keys, err := m.Keys(ctx, "sync:")
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 2 || keys[0] != "sync:a" || keys[1] != "sync:b" {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestMemoryPushBounded(t *testing.T) {
	ctx := context.Background()
	m := kv.NewMemory()

	for i := byte(0); i < 5; i++ {
		if err := m.Push(ctx, "events:sync", []byte{'a' + i}, 3); err != nil {
			t.Fatalf("push: %v", err)
		}
	}

	got, err := m.Range(ctx, "events:sync", 0)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	// newest first, trimmed to the last 3
	if len(got) != 3 || string(got[0]) != "e" || string(got[2]) != "c" {
		t.Fatalf("unexpected stream: %q", got)
	}
}

func TestMemoryRangeLimit(t *testing.T) {
	ctx := context.Background()
	m := kv.NewMemory()

	for i := byte(0); i < 4; i++ {
		_ = m.Push(ctx, "events:webhook", []byte{'w', '0' + i}, 0)
	}

	got, err := m.Range(ctx, "events:webhook", 2)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(got) != 2 || string(got[0]) != "w3" || string(got[1]) != "w2" {
		t.Fatalf("unexpected page: %q", got)
	}
}

func TestMemorySweep(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(time.Unix(1_700_000_000, 0))
	m := kv.NewMemoryWithClock(clk)

	_ = m.Set(ctx, "sync:old", []byte("x"), time.Minute)
	_ = m.Set(ctx, "sync:keep", []byte("y"), time.Hour)

	clk.Advance(2 * time.Minute)
	if err := m.Sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	keys, _ := m.Keys(ctx, "sync:")
	if len(keys) != 1 || keys[0] != "sync:keep" {
		t.Fatalf("unexpected survivors: %v", keys)
	}
}
