package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Cache stores opaque byte values under string keys. Backends are used for
// last-known-good snapshots, so a miss is never an error.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// GetJSON decodes the cached value for key into dst.
func GetJSON(ctx context.Context, c Cache, key string, dst interface{}) (bool, error) {
	data, ok := c.Get(ctx, key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode cached %q: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes value and stores it under key with the backend's default TTL.
func SetJSON(ctx context.Context, c Cache, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache value %q: %w", key, err)
	}
	return c.Set(ctx, key, data)
}
