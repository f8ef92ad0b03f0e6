// Package cache is a JSON key-value layer with expiry.
package cache

import (
	"context"
	"time"
)

// Cache stores JSON values. A zero ttl means no expiry.
type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) (hit bool, err error)
	SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error
	// SetJSONMany writes every entry atomically with one ttl.
	SetJSONMany(ctx context.Context, entries map[string]any, ttl time.Duration) error
	// ReplaceJSON writes only when key already exists and reports whether it did.
	ReplaceJSON(ctx context.Context, key string, val any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
}
