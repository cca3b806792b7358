package rbac

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/permcache/pkg/observability"
	"github.com/platinummonkey/permcache/pkg/storage"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Checker decides whether a user holds a permission
type Checker interface {
	// Check returns the cached decision. A missing entry is a denial.
	// Errors wrap ErrCheckFailed and must never be treated as an allow.
	Check(ctx context.Context, req CheckRequest) (bool, error)
}

// CacheChecker answers permission checks from the cache store and keeps the
// user's permission set and session alive on every hit
type CacheChecker struct {
	store   storage.CacheStore
	ttls    TTLs
	logger  logrus.FieldLogger
	metrics *observability.Metrics
	tracer  trace.Tracer
	now     func() time.Time
}

var _ Checker = (*CacheChecker)(nil)

// NewCacheChecker creates a new cache-backed checker
func NewCacheChecker(store storage.CacheStore, ttls TTLs, logger logrus.FieldLogger, metrics *observability.Metrics) *CacheChecker {
	return &CacheChecker{
		store:   store,
		ttls:    ttls,
		logger:  observability.OrNop(logger),
		metrics: metrics,
		tracer:  otel.Tracer(tracerName),
		now:     time.Now,
	}
}

// Check looks up req.PermissionCode in the user's cached permission set
func (c *CacheChecker) Check(ctx context.Context, req CheckRequest) (bool, error) {
	start := time.Now()

	ctx, span := c.tracer.Start(ctx, "rbac.Check", trace.WithAttributes(
		attribute.String("user.id", req.UserID.String()),
		attribute.String("permission.code", req.PermissionCode),
	))
	defer span.End()

	allowed, err := c.check(ctx, req)

	result := observability.CheckResultDeny
	switch {
	case err != nil:
		result = observability.CheckResultError
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case allowed:
		result = observability.CheckResultAllow
	}
	span.SetAttributes(attribute.String("permission.result", result))
	c.metrics.RecordCheck(result, time.Since(start))

	return allowed, err
}

func (c *CacheChecker) check(ctx context.Context, req CheckRequest) (bool, error) {
	if req.UserID == uuid.Nil {
		return false, fmt.Errorf("%w: %w", ErrCheckFailed, ErrInvalidUserID)
	}

	log := observability.FromContextOr(ctx, c.logger).WithFields(logrus.Fields{
		"user_id":         req.UserID.String(),
		"permission_code": req.PermissionCode,
	})
	if req.PermissionCode == "" {
		log.Warn("Permission check without a permission code, denying")
		return false, nil
	}

	key := PermissionKey(req.UserID)
	allowed, found, err := c.store.HashGet(ctx, key, req.PermissionCode)
	if err != nil {
		log.WithError(err).Error("Permission cache lookup failed")
		return false, fmt.Errorf("%w: %w", ErrCheckFailed, err)
	}

	c.metrics.RecordCacheLookup(found)
	if !found {
		log.Info("Permission not found in cache, denying")
		return false, nil
	}

	c.refresh(ctx, req.UserID, log)
	return allowed, nil
}

// refresh slides the permission and session TTLs. Failures are logged only:
// the decision already read is still valid.
func (c *CacheChecker) refresh(ctx context.Context, userID uuid.UUID, log logrus.FieldLogger) {
	if err := c.store.Expire(ctx, PermissionKey(userID), c.ttls.Permission); err != nil {
		log.WithError(err).Warn("Failed to extend permission cache TTL")
	}
	if err := c.store.Expire(ctx, SessionKey(userID), c.ttls.Session); err != nil {
		log.WithError(err).Warn("Failed to extend session TTL")
	}
	if err := storage.SetValue(ctx, c.store, SessionTrackerKey(userID), c.now().UTC(), c.ttls.Session); err != nil {
		log.WithError(err).Warn("Failed to stamp session tracker")
	}
}
