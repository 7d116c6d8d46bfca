// Package kv provides a small key value seam for sync state, cached
// metrics, and bounded event streams. Backends: in process memory and
// postgres for multi process deployments
package kv

import (
	"context"
	"time"
)

// KV is the surface the services use for ephemeral shared state
type KV interface {
	// Set stores value under key with a ttl, ttl <= 0 means no expiry
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get returns the value and whether it exists and is unexpired
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Del removes key, missing keys are not an error
	Del(ctx context.Context, key string) error

	// Keys returns all live keys with the given prefix
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Push appends value to the stream named key, trimming the oldest
	// entries so at most max remain
	Push(ctx context.Context, key string, value []byte, max int) error

	// Range returns up to limit newest-first entries of the stream key
	Range(ctx context.Context, key string, limit int) ([][]byte, error)

	// Sweep drops expired entries, backends that expire lazily may no-op
	Sweep(ctx context.Context) error
}
