// Package api provides the internal HTTP API of the permission cache.
//
// The API is for service-to-service use only. It is mounted under
// /internal/v1 and, when service token hashes are configured, requires a
// Bearer service token.
//
// # Endpoints
//
//	POST /internal/v1/users/{userId}/permissions/snapshot     take a population snapshot
//	PUT  /internal/v1/users/{userId}/permissions              populate from the user's roles
//	POST /internal/v1/users/{userId}/permission-changes       publish an invalidation event
//	POST /internal/v1/authorize                               allow/deny for a user and code
//	GET  /internal/v1/probe/{permissionCode}                  runs the authorization interceptor
//
// Health and metrics endpoints are served at /health, /health/live,
// /health/ready and /metrics without authentication.
//
// # Login flow
//
// The authentication service takes a snapshot before it loads the user's
// roles, then PUTs the roles together with the snapshot version. A 409
// STALE_SNAPSHOT response means the user was invalidated in between; the
// caller reloads roles and starts over.
package api
