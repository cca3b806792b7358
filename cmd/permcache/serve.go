package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/platinummonkey/permcache/pkg/api"
	"github.com/platinummonkey/permcache/pkg/auth"
	"github.com/platinummonkey/permcache/pkg/broker"
	"github.com/platinummonkey/permcache/pkg/middleware"
	"github.com/platinummonkey/permcache/pkg/observability"
	"github.com/platinummonkey/permcache/pkg/rbac"
	"github.com/spf13/cobra"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the internal API and consume permission changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			policy, err := middleware.NewTrustPolicy(cfg.Trust)
			if err != nil {
				return err
			}
			verifier, err := auth.NewTokenVerifier(cfg.Server.InternalTokenHashes)
			if err != nil {
				return err
			}
			if !verifier.Enabled() {
				logger.Warn("No internal token hashes configured; internal API is unauthenticated")
			}

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}

			publishCh, err := a.conn.Channel()
			if err != nil {
				a.close()
				return err
			}
			publisher := broker.NewPublisher(publishCh,
				topology(cfg.Broker.Queues.PermissionChanged), logger, a.metrics)

			ttls := a.ttls()
			checker := rbac.NewCacheChecker(a.store, ttls, logger, a.metrics)

			server := api.NewServer(api.Dependencies{
				Populator:   rbac.NewPopulator(a.store, ttls, logger, a.metrics),
				Checker:     checker,
				Publisher:   rbac.NewChangePublisher(publisher, logger),
				Interceptor: rbac.NewInterceptor(checker, policy, logger),
				Trust:       policy,
				Verifier:    verifier,
				Health:      observability.NewHealthChecker(a.store.Client(), a.conn),
				Registry:    a.registry,
				Metrics:     a.metrics,
				Logger:      logger,
			})

			if err := a.startBackground(ctx); err != nil {
				a.close()
				return err
			}

			return a.run(ctx, newHTTPServer(cfg.Server, server))
		},
	}
}
