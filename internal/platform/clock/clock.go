// Package clock provides an injectable time source so schedulers and tests
// can drive time deterministically
package clock

import (
	"sync"
	"time"
)

// Clock is the minimal time surface the bridge depends on
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// System is the wall clock
type System struct{}

// Now returns the current UTC time
func (System) Now() time.Time { return time.Now().UTC() }

// Since returns time elapsed since t
func (System) Since(t time.Time) time.Duration { return time.Now().UTC().Sub(t) }

// Manual is a hand-driven clock for tests
// zero value starts at the Unix epoch
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual returns a Manual clock pinned at start
func NewManual(start time.Time) *Manual { return &Manual{now: start.UTC()} }

// Now returns the pinned time
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Since returns elapsed pinned time since t
func (m *Manual) Since(t time.Time) time.Duration { return m.Now().Sub(t) }

// Advance moves the pinned time forward by d
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

// Set pins the clock to t
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t.UTC()
	m.mu.Unlock()
}
