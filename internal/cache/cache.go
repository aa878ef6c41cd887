// Package cache provides a TTL-aware key/value store used for short-lived
// lookups such as the preference read cache. Values are opaque strings;
// callers marshal their own payloads.
package cache

import (
	"context"
	"time"
)

type Cache interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Get returns the value and whether the key was present and unexpired.
	Get(ctx context.Context, key string) (string, bool, error)
	Delete(ctx context.Context, key string) error
	// Keys lists the unexpired keys that start with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}
