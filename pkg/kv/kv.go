// Package kv is the key-value capability exposed to storage addons and used
// internally for small mutable state like the login ban list. Drivers only
// need to implement plain CRUD plus a counter, which keeps the surface
// portable between the in-process memory driver and Redis.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound reports a missing key.
var ErrNotFound = errors.New("kv: key not found")

// Store is a minimal key-value contract. Values are opaque strings; callers
// own their own encoding. A zero ttl means the key does not expire.
type Store interface {
	// Set creates or replaces a key.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Get returns the value for key or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Incr atomically increments an integer value, creating it at 1 when
	// absent, and returns the new value. The ttl applies on creation only.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Close releases driver resources.
	Close() error
}
