package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/platinummonkey/permcache/pkg/async"
	"github.com/platinummonkey/permcache/pkg/broker"
	"github.com/platinummonkey/permcache/pkg/config"
	"github.com/platinummonkey/permcache/pkg/observability"
	"github.com/platinummonkey/permcache/pkg/rbac"
	"github.com/platinummonkey/permcache/pkg/storage/rediscache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

// app holds the process-wide dependencies shared by serve and consume
type app struct {
	cfg    *config.Config
	logger *logrus.Logger

	registry *prometheus.Registry
	metrics  *observability.Metrics
	store    *rediscache.Store
	conn     *broker.Connection
	shutdown *observability.ShutdownManager

	hosts []*async.Host
}

func newApp(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   logger,
		shutdown: observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout),
	}

	tp, err := observability.InitTracing(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return nil, err
	}
	a.shutdown.Register("tracing", func(ctx context.Context) error {
		return observability.ShutdownTracing(ctx, tp, logger)
	})

	if cfg.Observability.MetricsEnabled {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		a.metrics = observability.NewMetrics(a.registry)
	}

	a.store, err = rediscache.NewStore(ctx, rediscache.Options{
		URL:        cfg.Redis.URL,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
	})
	if err != nil {
		a.close()
		return nil, err
	}
	a.shutdown.Register("redis", func(context.Context) error { return a.store.Close() })
	logger.Info("Connected to Redis")

	a.conn, err = broker.Dial(cfg.Broker.URL, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	a.shutdown.Register("broker", func(context.Context) error { return a.conn.Close() })
	logger.Info("Connected to message broker")

	return a, nil
}

// close releases whatever newApp managed to open
func (a *app) close() {
	if err := a.shutdown.Shutdown(context.Background()); err != nil {
		a.logger.WithError(err).Warn("Cleanup after failed startup was incomplete")
	}
}

func (a *app) ttls() rbac.TTLs {
	return rbac.TTLs{
		Permission: a.cfg.Cache.EffectivePermissionTTL(),
		Session:    a.cfg.Cache.EffectiveSessionTTL(),
		Version:    a.cfg.Cache.VersionTTL,
	}
}

func topology(q config.QueueConfig) broker.Topology {
	return broker.Topology{
		Exchange:             q.Exchange,
		RoutingKey:           q.RoutingKey,
		Queue:                q.Queue,
		DeadLetterExchange:   q.DeadLetterExchange,
		DeadLetterQueue:      q.DeadLetterQueue,
		DeadLetterRoutingKey: q.DeadLetterRoutingKey,
	}
}

func retryPolicy(cfg config.BrokerConfig) broker.RetryPolicy {
	return broker.RetryPolicy{
		Retries:   uint(cfg.RetryAttempts),
		BaseDelay: cfg.RetryBaseDelay,
	}
}

// startBackground starts the permission-change consumer and the dead-letter
// monitor, each on its own channel
func (a *app) startBackground(ctx context.Context) error {
	t := topology(a.cfg.Broker.Queues.PermissionChanged)

	consumerCh, err := a.conn.Channel()
	if err != nil {
		return err
	}
	handler := rbac.NewChangeHandler(a.store, a.ttls(), a.logger, a.metrics)
	consumer := broker.NewConsumer[rbac.PermissionChangeMessage](
		consumerCh, t, handler, retryPolicy(a.cfg.Broker), a.logger, a.metrics)

	monitor := broker.NewDLQMonitor(a.conn, []string{t.DeadLetterQueue},
		a.cfg.Broker.DLQMonitorSchedule, a.logger, a.metrics)

	// the consumer declares the dead-letter queue the monitor inspects
	for _, h := range []*async.Host{
		async.NewHost("permission-consumer", consumer, a.logger),
		async.NewHost("dlq-monitor", monitor, a.logger),
	} {
		stop := h.Stop
		a.shutdown.Register(h.Name(), stop)
		// Hosts outlive ctx: they are stopped by the shutdown manager
		h.Start(context.WithoutCancel(ctx))
		a.hosts = append(a.hosts, h)
	}
	return nil
}

// run blocks until a signal arrives or a background service fails, then
// shuts everything down in reverse start order
func (a *app) run(ctx context.Context, server *http.Server) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, h := range a.hosts {
		h := h
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return nil
			case err := <-h.Fatal():
				return err
			}
		})
	}

	if server != nil {
		a.shutdown.Register("http", server.Shutdown)
		g.Go(func() error {
			a.logger.WithField("addr", server.Addr).Info("HTTP server listening")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server failed: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("Shutting down")
		return a.shutdown.Shutdown(context.Background())
	})

	return g.Wait()
}

// newHTTPServer wraps handler in a server span per request; checker and
// populator spans become its children
func newHTTPServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           otelhttp.NewHandler(handler, "permcache.http"),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
	}
}
