package rbac

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/permcache/pkg/observability"
	"github.com/platinummonkey/permcache/pkg/storage"
	"github.com/sirupsen/logrus"
)

// MessagePublisher delivers a JSON message to the configured exchange
type MessagePublisher interface {
	Publish(ctx context.Context, msg interface{}) error
}

// ChangePublisher announces permission changes to every service instance
type ChangePublisher struct {
	publisher MessagePublisher
	logger    logrus.FieldLogger
}

// NewChangePublisher creates a new change publisher
func NewChangePublisher(publisher MessagePublisher, logger logrus.FieldLogger) *ChangePublisher {
	return &ChangePublisher{
		publisher: publisher,
		logger:    observability.OrNop(logger),
	}
}

// Publish emits a PermissionChangeMessage for userID. Callers must treat an
// error as a failure of the permission change itself: a committed change
// without an event leaves every instance serving the old permissions.
func (p *ChangePublisher) Publish(ctx context.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return ErrInvalidUserID
	}

	msg := PermissionChangeMessage{UserID: userID}
	if err := p.publisher.Publish(ctx, msg); err != nil {
		p.logger.WithError(err).WithField("user_id", userID.String()).
			Error("Failed to publish permission change")
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	p.logger.WithField("user_id", userID.String()).Debug("Published permission change")
	return nil
}

// ChangeHandler invalidates cached permissions on a PermissionChangeMessage
type ChangeHandler struct {
	store      storage.VersionedStore
	versionTTL time.Duration
	logger     logrus.FieldLogger
	metrics    *observability.Metrics
}

// NewChangeHandler creates a new change handler
func NewChangeHandler(store storage.VersionedStore, ttls TTLs, logger logrus.FieldLogger, metrics *observability.Metrics) *ChangeHandler {
	return &ChangeHandler{
		store:      store,
		versionTTL: ttls.Version,
		logger:     observability.OrNop(logger),
		metrics:    metrics,
	}
}

// Handle drops the user's permission set. A message without a user id is
// logged and acknowledged; retrying it could never succeed.
func (h *ChangeHandler) Handle(ctx context.Context, msg PermissionChangeMessage) error {
	if msg.UserID == uuid.Nil {
		h.logger.Warn("Permission change message without user id, skipping")
		return nil
	}
	return h.Invalidate(ctx, msg.UserID)
}

// Invalidate deletes the user's permission set and bumps its version so an
// in-flight population computed before this call is rejected
func (h *ChangeHandler) Invalidate(ctx context.Context, userID uuid.UUID) error {
	version, err := h.store.DeleteAndBump(ctx, PermissionKey(userID), PermissionVersionKey(userID), h.versionTTL)
	if err != nil {
		h.metrics.RecordInvalidation(observability.StatusError)
		return fmt.Errorf("failed to invalidate permissions for %s: %w", userID, err)
	}

	h.metrics.RecordInvalidation(observability.StatusOK)
	h.logger.WithFields(logrus.Fields{
		"user_id": userID.String(),
		"version": version,
	}).Info("Permission cache invalidated")
	return nil
}
