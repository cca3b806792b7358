// Package observability provides structured logging, Prometheus metrics, health checks and
// OpenTelemetry tracing for the permission cache service.
//
// # Structured Logging
//
// Loggers are logrus loggers. Create one at process start and pass it down through constructors:
//
//	logger := observability.NewLogger("info", "json", os.Stdout)
//	checker := rbac.NewCacheChecker(store, ttls, logger, metrics)
//
// Request-scoped logging:
//
//	ctx = observability.WithLogger(ctx, logger)
//	observability.FromContext(ctx).Warn("cache miss")
//
// FromContext adds request_id and user_id fields when they are present in the context.
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.RecordCheck(observability.CheckResultAllow, time.Since(start))
//
// Every recorder is safe to call on a nil *Metrics, so components can be built without metrics
// in tests.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(redisClient, brokerConn)
//	observability.RegisterHealthRoutes(router, checker)
//
// Redis is a hard dependency: authorization is impossible without it, so a failed ping marks the
// service unhealthy. A closed broker connection only degrades it, since checks keep working and
// invalidations wait in the durable queue.
//
// # OpenTelemetry
//
//	tp, err := observability.InitTracing(ctx, cfg, logger)
//	defer observability.ShutdownTracing(ctx, tp, logger)
//
// # Shutdown
//
// ShutdownManager runs registered shutdown functions in reverse registration order so that
// resources are released after the components that use them have stopped.
package observability
