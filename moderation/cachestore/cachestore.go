package cachestore

import (
	"context"
	"encoding/json"
	"fmt"
)

// Namespaced string cache with a fixed TTL. A miss is reported as an empty string and no error.
type CacheStore interface {
	Get(ctx context.Context, name, key string) (string, error)
	Set(ctx context.Context, name, key string, val string) error
	Purge(ctx context.Context, name, key string) error
}

// Reads and decodes a JSON value. Returns false (and no error) on a cache miss.
func GetJSON[T any](ctx context.Context, c CacheStore, name, key string, out *T) (bool, error) {
	raw, err := c.Get(ctx, name, key)
	if err != nil {
		return false, err
	}
	if raw == "" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("decoding cached %s: %w", name, err)
	}
	return true, nil
}

func SetJSON[T any](ctx context.Context, c CacheStore, name, key string, val T) error {
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}
	return c.Set(ctx, name, key, string(b))
}
