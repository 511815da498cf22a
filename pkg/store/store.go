// Package store defines the two shared storage collaborators the engine
// depends on: a fast TTL cache for active conversation state and memoized
// provider results, and a durable store for user profiles and the
// append-only transcript log.
//
// All components access storage through these narrow interfaces; backends
// (in-memory, Redis, Postgres) are swappable without changing caller code.
package store

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for store operations.
var (
	// ErrClosed is returned when operating on a closed store.
	ErrClosed = errors.New("store: closed")
)

// Cache is a short-TTL key/value store. TTL eviction is a normal, expected
// event: a missing key is reported via the ok result, never as an error.
type Cache interface {
	// Get returns the value for key, and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key with the given TTL.
	// A non-positive TTL means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Durable is the long-term profile store. Set overwrites; Append adds an
// entry to an append-only, monotonic log under key. The store performs no
// compaction.
type Durable interface {
	// Get returns the value for key, and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key.
	Set(ctx context.Context, key string, value []byte) error

	// Append adds entry to the log stored under key.
	Append(ctx context.Context, key string, entry []byte) error

	// List returns log entries for key in append order.
	// A positive limit returns only the most recent limit entries.
	List(ctx context.Context, key string, limit int) ([][]byte, error)
}
