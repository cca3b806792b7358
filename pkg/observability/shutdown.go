package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultShutdownTimeout bounds Shutdown when no timeout is configured
const DefaultShutdownTimeout = 30 * time.Second

// ShutdownFunc is a function to call during shutdown
type ShutdownFunc func(context.Context) error

type namedShutdown struct {
	name string
	fn   ShutdownFunc
}

// ShutdownManager runs registered shutdown functions in reverse registration
// order, so resources opened first are released last.
type ShutdownManager struct {
	logger          logrus.FieldLogger
	shutdownTimeout time.Duration

	mu    sync.Mutex
	funcs []namedShutdown
	done  bool
}

// NewShutdownManager creates a new shutdown manager
func NewShutdownManager(logger logrus.FieldLogger, timeout time.Duration) *ShutdownManager {
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	return &ShutdownManager{
		logger:          OrNop(logger),
		shutdownTimeout: timeout,
	}
}

// Register adds a named shutdown function. Nil functions are ignored.
func (sm *ShutdownManager) Register(name string, fn ShutdownFunc) {
	if fn == nil {
		return
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.funcs = append(sm.funcs, namedShutdown{name: name, fn: fn})
}

// Shutdown executes all registered functions once, last registered first.
// Every function runs even if an earlier one fails; the number of failures
// is reported in the returned error.
func (sm *ShutdownManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	if sm.done {
		sm.mu.Unlock()
		return nil
	}
	sm.done = true
	funcs := sm.funcs
	sm.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, sm.shutdownTimeout)
	defer cancel()

	var failed int
	for i := len(funcs) - 1; i >= 0; i-- {
		entry := funcs[i]
		log := sm.logger.WithField("component", entry.name)

		if err := ctx.Err(); err != nil {
			log.Warn("Shutdown deadline reached, skipping")
			failed++
			continue
		}

		log.Info("Shutting down")
		if err := entry.fn(ctx); err != nil {
			log.WithError(err).Error("Shutdown failed")
			failed++
			continue
		}
		log.Info("Shutdown complete")
	}

	if failed > 0 {
		return fmt.Errorf("shutdown completed with %d errors", failed)
	}

	sm.logger.Info("Graceful shutdown complete")
	return nil
}
