// Package provider defines the key-value backend contract consumed by the
// tarotcache Store.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly the
// same []byte that was previously passed to Set for a key. If a store performs
// internal framing (e.g. an expiry header), it MUST be stripped on read.
//
// Providers report failures as errors. Absorbing them into safe defaults is the
// Store's job, not the provider's.
package provider

import (
	"context"
	"time"
)

// Missing and Persistent are the TTL sentinels returned by Provider.TTL,
// matching Redis TTL semantics.
const (
	Missing    int64 = -2
	Persistent int64 = -1
)

// Provider is a byte store with per-key TTLs.
// Must be safe for concurrent use.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value. ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetNX stores value only when key is absent and reports whether it did.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Del removes keys and returns how many existed.
	Del(ctx context.Context, keys ...string) (int64, error)

	Exists(ctx context.Context, key string) (bool, error)

	// TTL returns the remaining lifetime in whole seconds, Persistent when the
	// key has no expiry, or Missing when the key does not exist.
	TTL(ctx context.Context, key string) (int64, error)

	// Expire sets a new TTL on an existing key and reports whether the key existed.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IncrBy atomically adds delta to an integer value (missing => 0) and
	// returns the new value.
	IncrBy(ctx context.Context, key string, delta int64) (int64, error)

	// MGet returns one slot per key, nil for misses.
	MGet(ctx context.Context, keys ...string) ([][]byte, error)

	// MSet writes all items with the same TTL in one round trip where the
	// backend allows it.
	MSet(ctx context.Context, items map[string][]byte, ttl time.Duration) error

	// Keys returns keys matching a glob pattern (Redis KEYS syntax).
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Info reports backend-level counters. Unknown values stay zero.
	Info(ctx context.Context) (Info, error)

	Ping(ctx context.Context) error

	// Close releases resources.
	Close(ctx context.Context) error
}

// Info is the backend's own view of its health.
type Info struct {
	KeyspaceHits     int64
	KeyspaceMisses   int64
	UsedMemory       int64
	ConnectedClients int64
	Keys             int64
}
