// Package storage defines the cache store used for authorization decisions.
//
// The store is shared by every service instance and lives out of process, so
// all operations are network calls and no client-side locking exists. The
// Redis implementation lives in the rediscache subpackage.
//
// Permission sets are stored as hashes of permission code to boolean and are
// always replaced whole. VersionedStore closes the window in which a login
// computing a permission set could overwrite a concurrent invalidation:
//
//	version, _ := store.Version(ctx, versionKey, versionTTL) // before loading roles
//	fields := computePermissions()
//	err := store.ReplaceHashIfVersion(ctx, key, versionKey, version, fields, ttl)
//	if errors.Is(err, storage.ErrStaleSnapshot) {
//		// an invalidation landed in between; reload roles and retry
//	}
//
// Scalar values use the generic JSON helpers:
//
//	storage.SetValue(ctx, store, "session:tracker:"+id, time.Now(), ttl)
//	ts, found, err := storage.GetValue[time.Time](ctx, store, "session:tracker:"+id)
package storage
