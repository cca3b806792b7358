// Package rediscache implements the storage cache contracts on Redis.
package rediscache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/platinummonkey/permcache/pkg/storage"
)

// Options configures the Redis connection
type Options struct {
	URL        string
	Password   string
	DB         int // negative keeps the database from URL
	PoolSize   int
	MaxRetries int
}

// Store is a storage.VersionedStore backed by Redis
type Store struct {
	client *redis.Client
}

var _ storage.VersionedStore = (*Store)(nil)

// NewStore connects to Redis and verifies the connection
func NewStore(ctx context.Context, opts Options) (*Store, error) {
	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if opts.Password != "" {
		redisOpts.Password = opts.Password
	}
	if opts.DB >= 0 {
		redisOpts.DB = opts.DB
	}
	if opts.MaxRetries > 0 {
		redisOpts.MaxRetries = opts.MaxRetries
	}
	if opts.PoolSize > 0 {
		redisOpts.PoolSize = opts.PoolSize
	}

	redisOpts.DialTimeout = 5 * time.Second
	redisOpts.ReadTimeout = 3 * time.Second
	redisOpts.WriteTimeout = 3 * time.Second
	redisOpts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(redisOpts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Store{client: client}, nil
}

// NewStoreFromClient wraps an existing client
func NewStoreFromClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// HashGet reads one boolean field of a hash
func (s *Store) HashGet(ctx context.Context, key, field string) (bool, bool, error) {
	raw, err := s.client.HGet(ctx, key, field).Result()
	if err == redis.Nil {
		return false, false, nil
	} else if err != nil {
		return false, false, fmt.Errorf("redis hget %s failed: %w", key, err)
	}

	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false, fmt.Errorf("corrupt field %s in %s: %w", field, key, err)
	}
	return value, true, nil
}

// HashSetMany writes all fields and the TTL in one MULTI/EXEC
func (s *Store) HashSetMany(ctx context.Context, key string, fields map[string]bool, ttl time.Duration) error {
	if len(fields) == 0 {
		return nil
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, hashValues(fields))
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis hset %s failed: %w", key, err)
	}
	return nil
}

// HashSet writes a single field and the TTL
func (s *Store) HashSet(ctx context.Context, key, field string, value bool, ttl time.Duration) error {
	return s.HashSetMany(ctx, key, map[string]bool{field: value}, ttl)
}

// Delete removes key
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s failed: %w", key, err)
	}
	return nil
}

// Expire sets a key's expiration
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("redis expire %s failed: %w", key, err)
	}
	return nil
}

// Get reads a raw value
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	} else if err != nil {
		return nil, false, fmt.Errorf("redis get %s failed: %w", key, err)
	}
	return data, true, nil
}

// Set writes a raw value with a TTL
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s failed: %w", key, err)
	}
	return nil
}

// Version returns the counter at versionKey, 0 when absent. An existing
// counter's TTL is reset to ttl so it outlives the snapshot being taken.
func (s *Store) Version(ctx context.Context, versionKey string, ttl time.Duration) (int64, error) {
	var get *redis.StringCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.Get(ctx, versionKey)
		pipe.Expire(ctx, versionKey, ttl)
		return nil
	})
	if err != nil && err != redis.Nil {
		return 0, fmt.Errorf("redis get %s failed: %w", versionKey, err)
	}

	version, err := get.Int64()
	if err == redis.Nil {
		return 0, nil
	} else if err != nil {
		return 0, fmt.Errorf("redis get %s failed: %w", versionKey, err)
	}
	return version, nil
}

// ReplaceHashIfVersion replaces the hash under WATCH on versionKey. Both a
// version mismatch and a concurrent write to versionKey during the
// transaction yield storage.ErrStaleSnapshot.
func (s *Store) ReplaceHashIfVersion(ctx context.Context, key, versionKey string, version int64, fields map[string]bool, ttl time.Duration) error {
	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, versionKey).Int64()
		if err != nil && err != redis.Nil {
			return fmt.Errorf("redis get %s failed: %w", versionKey, err)
		}
		if current != version {
			return storage.ErrStaleSnapshot
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			if len(fields) > 0 {
				pipe.HSet(ctx, key, hashValues(fields))
				pipe.Expire(ctx, key, ttl)
			}
			return nil
		})
		return err
	}

	err := s.client.Watch(ctx, txf, versionKey)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.TxFailedErr), errors.Is(err, storage.ErrStaleSnapshot):
		return storage.ErrStaleSnapshot
	default:
		return fmt.Errorf("redis replace %s failed: %w", key, err)
	}
}

// DeleteAndBump deletes key and increments versionKey in one MULTI/EXEC
func (s *Store) DeleteAndBump(ctx context.Context, key, versionKey string, versionTTL time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, versionKey)
		pipe.Expire(ctx, versionKey, versionTTL)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis invalidate %s failed: %w", key, err)
	}
	return incr.Val(), nil
}

// Ping checks Redis connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Client returns the underlying Redis client for health checks
func (s *Store) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

func hashValues(fields map[string]bool) map[string]interface{} {
	values := make(map[string]interface{}, len(fields))
	for field, allowed := range fields {
		values[field] = allowed
	}
	return values
}
