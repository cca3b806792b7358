package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrStaleSnapshot is returned when a versioned write loses the race
	// against an invalidation that happened after the snapshot was taken.
	ErrStaleSnapshot = errors.New("cache entry invalidated since snapshot")
)

// CacheStore is a shared, out-of-process key/value store.
// A missing key or field is reported through the found result, never as an
// error; errors are reserved for transport and encoding failures.
type CacheStore interface {
	// HashGet reads one boolean field of a hash
	HashGet(ctx context.Context, key, field string) (value bool, found bool, err error)
	// HashSetMany writes all fields and the key TTL as one store-side operation
	HashSetMany(ctx context.Context, key string, fields map[string]bool, ttl time.Duration) error
	// HashSet writes a single field and the key TTL
	HashSet(ctx context.Context, key, field string, value bool, ttl time.Duration) error

	Delete(ctx context.Context, key string) error
	// Expire resets the TTL of key; a missing key is not an error
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Get and Set move raw scalar values; see GetValue and SetValue
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// VersionedStore guards whole-hash replacement with a per-key version counter.
// Writers take a snapshot of the counter before computing the new contents;
// invalidators bump the counter atomically with the delete. A write whose
// snapshot no longer matches is rejected with ErrStaleSnapshot.
type VersionedStore interface {
	CacheStore

	// Version returns the current counter value, 0 when the counter is absent.
	// It resets an existing counter's TTL to ttl: a counter that expired and
	// was bumped back to an old value would let a stale snapshot match again.
	Version(ctx context.Context, versionKey string, ttl time.Duration) (int64, error)
	// ReplaceHashIfVersion atomically replaces the entire hash at key with fields
	// when versionKey still holds version
	ReplaceHashIfVersion(ctx context.Context, key, versionKey string, version int64, fields map[string]bool, ttl time.Duration) error
	// DeleteAndBump deletes key and increments versionKey in one transaction,
	// returning the new version
	DeleteAndBump(ctx context.Context, key, versionKey string, versionTTL time.Duration) (int64, error)
}
