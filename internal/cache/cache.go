// Package cache provides a small byte-oriented cache with TTL expiry.
// Two backends are available: an in-process map for single-node
// deployments and tests, and Redis for shared deployments.
package cache

import (
	"context"
	"time"
)

// Cache stores opaque payloads under string keys for a bounded lifetime.
type Cache interface {
	// Get returns the payload for key and whether it was present and fresh.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores the payload under key for ttl. A non-positive ttl stores
	// the entry without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes the entry for key if present.
	Delete(ctx context.Context, key string) error
}
