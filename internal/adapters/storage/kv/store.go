package kv

import (
	"context"
	"time"
)

// Store is the key-value contract shared by the view counter and the article list cache.
// Implementations must make Incr atomic across concurrent callers and processes.
type Store interface {
	// Incr atomically adds one to the integer at key, creating it at 1 when absent.
	Incr(ctx context.Context, key string) (int64, error)

	// Get returns the value at key. found is false for absent or expired keys.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// Set stores value at key. A ttl <= 0 stores it without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Del removes key. Deleting an absent key is not an error.
	Del(ctx context.Context, key string) error
}
