package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/permcache/pkg/observability"
	"github.com/spf13/cobra"
)

func newConsumeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "consume",
		Short: "Consume permission changes only",
		Long:  "Runs the permission-change consumer and dead-letter monitor without the internal API. Health and metrics are still served on server.addr.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}

			if err := a.startBackground(ctx); err != nil {
				a.close()
				return err
			}

			router := mux.NewRouter()
			observability.RegisterHealthRoutes(router, observability.NewHealthChecker(a.store.Client(), a.conn))
			if a.registry != nil {
				router.Handle("/metrics", observability.MetricsHandler(a.registry)).Methods(http.MethodGet)
			}

			return a.run(ctx, newHTTPServer(cfg.Server, router))
		},
	}
}
