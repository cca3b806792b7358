package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/platinummonkey/permcache/pkg/observability"
	"github.com/platinummonkey/permcache/pkg/storage"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/platinummonkey/permcache/pkg/rbac"

// Populator writes a user's permission set at login
type Populator struct {
	store   storage.VersionedStore
	ttls    TTLs
	logger  logrus.FieldLogger
	metrics *observability.Metrics
	tracer  trace.Tracer
}

// NewPopulator creates a new populator
func NewPopulator(store storage.VersionedStore, ttls TTLs, logger logrus.FieldLogger, metrics *observability.Metrics) *Populator {
	return &Populator{
		store:   store,
		ttls:    ttls,
		logger:  observability.OrNop(logger),
		metrics: metrics,
		tracer:  otel.Tracer(tracerName),
	}
}

// Snapshot records the invalidation version for userID. It must be taken
// before the user's roles are loaded.
func (p *Populator) Snapshot(ctx context.Context, userID uuid.UUID) (Snapshot, error) {
	if userID == uuid.Nil {
		return Snapshot{}, ErrInvalidUserID
	}

	version, err := p.store.Version(ctx, PermissionVersionKey(userID), p.ttls.Version)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read permission version: %w", err)
	}
	return Snapshot{UserID: userID, Version: version}, nil
}

// Populate replaces the cached permission set with the flattened roles.
// It returns storage.ErrStaleSnapshot when the user was invalidated after
// snap was taken; the caller should reload roles and take a new snapshot.
func (p *Populator) Populate(ctx context.Context, snap Snapshot, roles []Role) error {
	ctx, span := p.tracer.Start(ctx, "rbac.Populate",
		trace.WithAttributes(attribute.String("user.id", snap.UserID.String())))
	defer span.End()

	if snap.UserID == uuid.Nil {
		return ErrInvalidUserID
	}

	set := Flatten(roles)
	span.SetAttributes(attribute.Int("permission.count", len(set)))

	err := p.store.ReplaceHashIfVersion(ctx,
		PermissionKey(snap.UserID), PermissionVersionKey(snap.UserID),
		snap.Version, set, p.ttls.Permission)

	log := p.logger.WithFields(logrus.Fields{
		"user_id":     snap.UserID.String(),
		"permissions": len(set),
		"version":     snap.Version,
	})

	switch {
	case err == nil:
		p.metrics.RecordPopulation(observability.StatusOK)
		log.Debug("Permission cache populated")
		return nil
	case errors.Is(err, storage.ErrStaleSnapshot):
		p.metrics.RecordPopulation(observability.StatusStale)
		span.SetStatus(codes.Error, "stale snapshot")
		log.Info("Permission cache population skipped: invalidated since snapshot")
		return err
	default:
		p.metrics.RecordPopulation(observability.StatusError)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.WithError(err).Error("Permission cache population failed")
		return fmt.Errorf("failed to populate permissions: %w", err)
	}
}
