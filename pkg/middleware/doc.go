// Package middleware provides HTTP middleware for the internal API and the
// edge in front of it.
//
// # Middleware Components
//
// TrustPolicy: Decides which callers may assert identity through headers
//
//	policy, err := middleware.NewTrustPolicy(cfg.Trust)
//	interceptor := rbac.NewInterceptor(checker, policy, logger)
//
// StripUntrusted: Removes identity headers set by untrusted callers
//
//	router.Use(middleware.StripUntrusted(policy, logger))
//
// GatewayIdentity: Reads the subject of a gateway-verified JWT
//
//	router.Use(middleware.GatewayIdentity(policy))
//
// ServiceTokenAuth: Bearer service tokens for the internal API
//
//	internal.Use(middleware.ServiceTokenAuth(verifier, logger))
//
// RequestID: Request IDs and request-scoped loggers
//
//	router.Use(middleware.RequestID(logger))
//
// HTTPMetrics: Prometheus request counters labelled by route template
//
//	router.Use(middleware.HTTPMetrics(metrics))
//
// # Related Packages
//
//   - pkg/auth: Service tokens and the request auth context
//   - pkg/rbac: Permission checking
package middleware
