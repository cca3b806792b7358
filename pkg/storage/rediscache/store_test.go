package rediscache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/platinummonkey/permcache/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupStoreTest creates a miniredis instance and returns a store wired to it
func setupStoreTest(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	store, err := NewStore(context.Background(), Options{URL: "redis://" + mr.Addr(), DB: -1})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store, mr
}

func TestNewStore_InvalidURL(t *testing.T) {
	_, err := NewStore(context.Background(), Options{URL: "invalid://url"})
	if err == nil {
		t.Fatal("Expected error for invalid Redis URL")
	}
}

func TestNewStore_ConnectionFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewStore(context.Background(), Options{URL: "redis://" + addr})
	if err == nil {
		t.Fatal("Expected connection error")
	}
}

func TestNewStore_Options(t *testing.T) {
	mr := miniredis.RunT(t)

	store, err := NewStore(context.Background(), Options{
		URL:        "redis://" + mr.Addr() + "/0",
		DB:         2,
		PoolSize:   20,
		MaxRetries: 5,
	})
	require.NoError(t, err)
	defer store.Close()

	opts := store.Client().Options()
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 20, opts.PoolSize)
	assert.Equal(t, 5, opts.MaxRetries)
	assert.NoError(t, store.Ping(context.Background()))
}

func TestHashSetManyAndGet(t *testing.T) {
	store, mr := setupStoreTest(t)
	ctx := context.Background()

	err := store.HashSetMany(ctx, "permissions:u1", map[string]bool{
		"orders.read":  true,
		"orders.write": false,
	}, time.Hour)
	require.NoError(t, err)

	value, found, err := store.HashGet(ctx, "permissions:u1", "orders.read")
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, value)

	value, found, err = store.HashGet(ctx, "permissions:u1", "orders.write")
	require.NoError(t, err)
	assert.True(t, found)
	assert.False(t, value)

	assert.Equal(t, time.Hour, mr.TTL("permissions:u1"))
}

func TestHashSetMany_Empty(t *testing.T) {
	store, mr := setupStoreTest(t)

	require.NoError(t, store.HashSetMany(context.Background(), "permissions:u1", nil, time.Hour))
	assert.False(t, mr.Exists("permissions:u1"))
}

func TestHashSet(t *testing.T) {
	store, mr := setupStoreTest(t)
	ctx := context.Background()

	require.NoError(t, store.HashSet(ctx, "permissions:u1", "a", true, time.Minute))
	require.NoError(t, store.HashSet(ctx, "permissions:u1", "b", false, time.Minute))

	assert.Equal(t, "1", mr.HGet("permissions:u1", "a"))
	assert.Equal(t, "0", mr.HGet("permissions:u1", "b"))
}

func TestHashGet_Missing(t *testing.T) {
	store, mr := setupStoreTest(t)
	ctx := context.Background()

	_, found, err := store.HashGet(ctx, "permissions:nobody", "a")
	require.NoError(t, err)
	assert.False(t, found)

	mr.HSet("permissions:u1", "a", "1")
	_, found, err = store.HashGet(ctx, "permissions:u1", "b")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestHashGet_CorruptField(t *testing.T) {
	store, mr := setupStoreTest(t)

	mr.HSet("permissions:u1", "a", "maybe")

	_, _, err := store.HashGet(context.Background(), "permissions:u1", "a")
	assert.Error(t, err)
}

func TestHashGet_TransportError(t *testing.T) {
	store, mr := setupStoreTest(t)

	mr.SetError("connection reset")

	_, found, err := store.HashGet(context.Background(), "permissions:u1", "a")
	require.Error(t, err)
	assert.False(t, found)
}

func TestExpireAndDelete(t *testing.T) {
	store, mr := setupStoreTest(t)
	ctx := context.Background()

	mr.HSet("permissions:u1", "a", "1")
	require.NoError(t, store.Expire(ctx, "permissions:u1", 30*time.Minute))
	assert.Equal(t, 30*time.Minute, mr.TTL("permissions:u1"))

	// expiring a missing key is a no-op
	require.NoError(t, store.Expire(ctx, "missing", time.Minute))

	require.NoError(t, store.Delete(ctx, "permissions:u1"))
	assert.False(t, mr.Exists("permissions:u1"))

	require.NoError(t, store.Delete(ctx, "permissions:u1"))
}

func TestGetSet(t *testing.T) {
	store, mr := setupStoreTest(t)
	ctx := context.Background()

	_, found, err := store.Get(ctx, "session:u1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Set(ctx, "session:u1", []byte("active"), time.Hour))

	data, found, err := store.Get(ctx, "session:u1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "active", string(data))
	assert.Equal(t, time.Hour, mr.TTL("session:u1"))
}

func TestGenericValues(t *testing.T) {
	store, mr := setupStoreTest(t)
	ctx := context.Background()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, storage.SetValue(ctx, store, "session:tracker:u1", now, time.Hour))

	got, found, err := storage.GetValue[time.Time](ctx, store, "session:tracker:u1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, now.Equal(got))

	_, found, err = storage.GetValue[time.Time](ctx, store, "session:tracker:missing")
	require.NoError(t, err)
	assert.False(t, found)

	mr.Set("session:tracker:bad", "not json")
	_, _, err = storage.GetValue[time.Time](ctx, store, "session:tracker:bad")
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	store, mr := setupStoreTest(t)
	ctx := context.Background()

	version, err := store.Version(ctx, "permissions:version:u1", 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(0), version)
	// reading an absent counter does not create it
	assert.False(t, mr.Exists("permissions:version:u1"))

	mr.Set("permissions:version:u1", "7")
	version, err = store.Version(ctx, "permissions:version:u1", 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(7), version)
}

func TestVersion_RefreshesCounterTTL(t *testing.T) {
	store, mr := setupStoreTest(t)
	ctx := context.Background()

	mr.Set("permissions:version:u1", "1")
	mr.SetTTL("permissions:version:u1", time.Minute)

	_, err := store.Version(ctx, "permissions:version:u1", 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, mr.TTL("permissions:version:u1"))

	// the counter survives past its old expiry; had it expired, the bump
	// would restart it at 1 and the snapshot below would match again
	mr.FastForward(2 * time.Minute)
	version, err := store.DeleteAndBump(ctx, "permissions:u1", "permissions:version:u1", 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)
	err = store.ReplaceHashIfVersion(ctx, "permissions:u1", "permissions:version:u1", 1,
		map[string]bool{"orders.read": true}, time.Hour)
	assert.ErrorIs(t, err, storage.ErrStaleSnapshot)
}

func TestReplaceHashIfVersion(t *testing.T) {
	store, mr := setupStoreTest(t)
	ctx := context.Background()

	mr.HSet("permissions:u1", "old.code", "1")

	err := store.ReplaceHashIfVersion(ctx, "permissions:u1", "permissions:version:u1", 0,
		map[string]bool{"new.code": true}, time.Hour)
	require.NoError(t, err)

	// whole-map replacement: the old field is gone
	_, found, err := store.HashGet(ctx, "permissions:u1", "old.code")
	require.NoError(t, err)
	assert.False(t, found)

	value, found, err := store.HashGet(ctx, "permissions:u1", "new.code")
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, value)
	assert.Equal(t, time.Hour, mr.TTL("permissions:u1"))
}

func TestReplaceHashIfVersion_Stale(t *testing.T) {
	store, mr := setupStoreTest(t)
	ctx := context.Background()

	snapshot, err := store.Version(ctx, "permissions:version:u1", 24*time.Hour)
	require.NoError(t, err)

	// an invalidation lands between snapshot and write
	_, err = store.DeleteAndBump(ctx, "permissions:u1", "permissions:version:u1", 24*time.Hour)
	require.NoError(t, err)

	err = store.ReplaceHashIfVersion(ctx, "permissions:u1", "permissions:version:u1", snapshot,
		map[string]bool{"orders.read": true}, time.Hour)
	assert.ErrorIs(t, err, storage.ErrStaleSnapshot)
	assert.False(t, mr.Exists("permissions:u1"))
}

func TestReplaceHashIfVersion_EmptyFieldsDeletes(t *testing.T) {
	store, mr := setupStoreTest(t)

	mr.HSet("permissions:u1", "a", "1")

	err := store.ReplaceHashIfVersion(context.Background(), "permissions:u1", "permissions:version:u1", 0, nil, time.Hour)
	require.NoError(t, err)
	assert.False(t, mr.Exists("permissions:u1"))
}

func TestReplaceHashIfVersion_TransportError(t *testing.T) {
	store, mr := setupStoreTest(t)

	mr.SetError("connection reset")

	err := store.ReplaceHashIfVersion(context.Background(), "permissions:u1", "permissions:version:u1", 0,
		map[string]bool{"a": true}, time.Hour)
	require.Error(t, err)
	assert.False(t, errors.Is(err, storage.ErrStaleSnapshot))
}

func TestDeleteAndBump(t *testing.T) {
	store, mr := setupStoreTest(t)
	ctx := context.Background()

	mr.HSet("permissions:u1", "a", "1")

	version, err := store.DeleteAndBump(ctx, "permissions:u1", "permissions:version:u1", 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
	assert.False(t, mr.Exists("permissions:u1"))
	assert.Equal(t, 24*time.Hour, mr.TTL("permissions:version:u1"))

	version, err = store.DeleteAndBump(ctx, "permissions:u1", "permissions:version:u1", 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)
}

func TestNewStoreFromClient(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	store := NewStoreFromClient(client)
	defer store.Close()

	assert.Same(t, client, store.Client())
	assert.NoError(t, store.Ping(context.Background()))
}
