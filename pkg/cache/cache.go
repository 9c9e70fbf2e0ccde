package cache

import (
	"context"
	"time"
)

// Cache defines the interface for caching services.
// Get returns "" with a nil error when the key does not exist.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
	// Incr atomically increments the integer stored at key, starting from
	// zero, and returns the new value. The key does not expire.
	Incr(ctx context.Context, key string) (int64, error)
}
