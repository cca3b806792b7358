package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// GetValue reads a JSON-encoded scalar written by SetValue.
// A missing key returns the zero value with found=false.
func GetValue[T any](ctx context.Context, store CacheStore, key string) (T, bool, error) {
	var value T

	data, found, err := store.Get(ctx, key)
	if err != nil || !found {
		return value, false, err
	}

	if err := json.Unmarshal(data, &value); err != nil {
		return value, false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return value, true, nil
}

// SetValue stores value as JSON under key with the given TTL
func SetValue[T any](ctx context.Context, store CacheStore, key string, value T, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return store.Set(ctx, key, data, ttl)
}
