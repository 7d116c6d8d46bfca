package kv

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"nafbridge/internal/platform/clock"
)

type memEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// Memory is an in process KV, safe for concurrent use
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memEntry
	streams map[string][][]byte
	clk     clock.Clock
}

var _ KV = (*Memory)(nil)

// NewMemory builds an empty in process KV using the system clock
func NewMemory() *Memory { return NewMemoryWithClock(clock.System{}) }

// NewMemoryWithClock builds a Memory with a swappable clock for tests
func NewMemoryWithClock(clk clock.Clock) *Memory {
	return &Memory{
		entries: make(map[string]memEntry),
		streams: make(map[string][][]byte),
		clk:     clk,
	}
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := memEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = m.clk.Now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
	return nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && !m.clk.Now().Before(e.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

func (m *Memory) Del(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Keys(_ context.Context, prefix string) ([]string, error) {
	now := m.clk.Now()
	m.mu.RLock()
	out := make([]string, 0, 8)
	for k, e := range m.entries {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
			continue
		}
		out = append(out, k)
	}
	m.mu.RUnlock()
	sort.Strings(out)
	return out, nil
}

func (m *Memory) Push(_ context.Context, key string, value []byte, max int) error {
	m.mu.Lock()
	s := append(m.streams[key], append([]byte(nil), value...))
	if max > 0 && len(s) > max {
		s = s[len(s)-max:]
	}
	m.streams[key] = s
	m.mu.Unlock()
	return nil
}

func (m *Memory) Range(_ context.Context, key string, limit int) ([][]byte, error) {
	m.mu.RLock()
	s := m.streams[key]
	n := len(s)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([][]byte, 0, n)
	for i := len(s) - 1; i >= len(s)-n; i-- {
		out = append(out, append([]byte(nil), s[i]...))
	}
	m.mu.RUnlock()
	return out, nil
}

func (m *Memory) Sweep(_ context.Context) error {
	now := m.clk.Now()
	m.mu.Lock()
	for k, e := range m.entries {
		if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
			delete(m.entries, k)
		}
	}
	m.mu.Unlock()
	return nil
}
