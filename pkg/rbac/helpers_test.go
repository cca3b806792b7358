package rbac

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/platinummonkey/permcache/pkg/storage/rediscache"
)

var testTTLs = TTLs{
	Permission: time.Hour,
	Session:    30 * time.Minute,
	Version:    24 * time.Hour,
}

func newTestStore(t *testing.T) (*rediscache.Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	store := rediscache.NewStoreFromClient(redis.NewClient(&redis.Options{
		Addr:       mr.Addr(),
		MaxRetries: -1,
	}))
	t.Cleanup(func() { store.Close() })

	return store, mr
}
