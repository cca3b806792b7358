package main

import (
	"github.com/platinummonkey/permcache/pkg/config"
	"github.com/platinummonkey/permcache/pkg/observability"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type rootOptions struct {
	configFile string
	v          *viper.Viper
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{v: config.NewViper()}

	cmd := &cobra.Command{
		Use:           "permcache",
		Short:         "Permission authorization cache",
		Long:          "permcache answers allow/deny questions from a Redis permission cache and invalidates it from permission-change events.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "Path to a YAML configuration file")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-format", "json", "Log format (json, text)")
	bindFlags(opts.v, flags, map[string]string{
		"log-level":  "observability.log_level",
		"log-format": "observability.log_format",
	})

	cmd.AddCommand(
		newServeCommand(opts),
		newConsumeCommand(opts),
		newTokenCommand(),
	)
	return cmd
}

// bindFlags lets explicitly set flags override file and environment values
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for name, key := range keys {
		if f := flags.Lookup(name); f != nil {
			_ = v.BindPFlag(key, f)
		}
	}
}

// load reads the configuration and builds the process logger
func (o *rootOptions) load() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(o.v, o.configFile)
	if err != nil {
		return nil, nil, err
	}
	logger := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat, nil)
	return cfg, logger, nil
}
