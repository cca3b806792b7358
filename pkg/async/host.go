package async

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/platinummonkey/permcache/pkg/observability"
	"github.com/sirupsen/logrus"
)

// ErrUnexpectedExit is reported on Fatal when a service stops before Stop
// was called
var ErrUnexpectedExit = errors.New("service exited unexpectedly")

// Service is a long-running background component
type Service interface {
	// Run blocks until ctx is cancelled or the service fails
	Run(ctx context.Context) error
	// Close releases resources once Run has returned
	Close() error
}

// Host runs a Service in its own goroutine with panic recovery and owns its
// lifecycle. The process entry point starts hosts, watches Fatal and stops
// them on shutdown.
type Host struct {
	name   string
	svc    Service
	logger logrus.FieldLogger

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	stopping bool

	fatal    chan error
	stopOnce sync.Once
	stopErr  error
}

// NewHost creates a host for svc
func NewHost(name string, svc Service, logger logrus.FieldLogger) *Host {
	return &Host{
		name:   name,
		svc:    svc,
		logger: observability.OrNop(logger).WithField("service", name),
		fatal:  make(chan error, 1),
	}
}

// Name returns the service name
func (h *Host) Name() string {
	return h.name
}

// Start runs the service in the background. Calling Start more than once has
// no effect.
func (h *Host) Start(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.done != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.done = make(chan struct{})

	go h.run(ctx)
	h.logger.Info("Service started")
}

func (h *Host) run(ctx context.Context) {
	defer close(h.done)

	err := h.safeRun(ctx)

	h.mu.Lock()
	stopping := h.stopping
	h.mu.Unlock()

	if stopping {
		if err != nil {
			h.logger.WithError(err).Warn("Service returned error during shutdown")
		}
		return
	}

	if err == nil {
		err = ErrUnexpectedExit
	} else {
		err = fmt.Errorf("%w: %s: %w", ErrUnexpectedExit, h.name, err)
	}
	h.logger.WithError(err).Error("Service stopped")
	h.fatal <- err
}

func (h *Host) safeRun(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.WithFields(logrus.Fields{
				"panic": r,
				"stack": string(debug.Stack()),
			}).Error("Recovered from panic in service")
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h.svc.Run(ctx)
}

// Fatal receives at most one error, when the service exits on its own
func (h *Host) Fatal() <-chan error {
	return h.fatal
}

// Stop cancels the service, waits for Run to return, then closes it.
// If ctx expires first the service is closed anyway and ctx's error is
// returned.
func (h *Host) Stop(ctx context.Context) error {
	h.stopOnce.Do(func() {
		h.mu.Lock()
		h.stopping = true
		cancel, done := h.cancel, h.done
		h.mu.Unlock()

		var errs []error
		if cancel != nil {
			cancel()
			select {
			case <-done:
			case <-ctx.Done():
				errs = append(errs, fmt.Errorf("timed out waiting for %s: %w", h.name, ctx.Err()))
			}
		}

		if err := h.svc.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close %s: %w", h.name, err))
		}

		h.stopErr = errors.Join(errs...)
		h.logger.Info("Service stopped")
	})
	return h.stopErr
}
