// Package rbac makes authorization decisions from a shared permission cache.
//
// A user's permission set is computed once at login and cached as a hash of
// permission code to boolean under permissions:{userId}. Every authorization
// decision afterwards is a single hash field read. When an administrator
// changes a role, a PermissionChangeMessage is published to the broker and
// every service instance drops the cached set; it is recomputed at the next
// login.
//
// # Write path
//
// The authentication flow takes a snapshot before loading roles and hands
// the roles to Populate. Roles are flattened with logical OR across active
// roles.
//
//	snap, err := populator.Snapshot(ctx, userID)
//	roles := loadRoles(userID)
//	err = populator.Populate(ctx, snap, roles)
//	if errors.Is(err, storage.ErrStaleSnapshot) {
//		// invalidated while roles were loading; retry from Snapshot
//	}
//
// # Read path
//
// CacheChecker is fail-closed: a missing entry is a denial, and a store
// failure is reported as ErrCheckFailed instead of a decision. Each hit
// slides the permission TTL, extends session:{userId} and stamps
// session:tracker:{userId}.
//
//	interceptor := rbac.NewInterceptor(checker, trustPolicy, logger)
//	router.Handle("/orders", interceptor.Require("orders.read")(ordersHandler))
//
// The interceptor resolves the acting user from the X-Permission-UserId
// header only for trusted callers, otherwise from the authenticated subject.
//
// # Invalidation
//
//	publisher := rbac.NewChangePublisher(brokerPublisher, logger)
//	if err := publisher.Publish(ctx, userID); err != nil {
//		// roll back the role change
//	}
//
// ChangeHandler is the broker consumer's handler; it deletes the permission
// set and bumps permissions:version:{userId} in one transaction.
package rbac
