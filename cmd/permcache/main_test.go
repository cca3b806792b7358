package main

import (
	"bytes"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/platinummonkey/permcache/pkg/auth"
	"github.com/platinummonkey/permcache/pkg/config"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := newRootCommand()

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "consume", "token"}, names)
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
	assert.NotNil(t, cmd.PersistentFlags().Lookup("log-level"))
}

func TestTokenCommand(t *testing.T) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"token", "--count", "2"})

	require.NoError(t, cmd.Execute())

	tokens := regexp.MustCompile(`token:\s+(\S+)`).FindAllStringSubmatch(out.String(), -1)
	hashes := regexp.MustCompile(`hash:\s+(\S+)`).FindAllStringSubmatch(out.String(), -1)
	require.Len(t, tokens, 2)
	require.Len(t, hashes, 2)
	assert.NotEqual(t, tokens[0][1], tokens[1][1])

	verifier, err := auth.NewTokenVerifier([]string{hashes[0][1], hashes[1][1]})
	require.NoError(t, err)
	for _, tok := range tokens {
		assert.True(t, strings.HasPrefix(tok[1], auth.TokenPrefix))
		assert.NoError(t, verifier.Verify(tok[1]))
	}
}

func TestTokenCommand_InvalidCount(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"token", "--count", "0"})

	assert.Error(t, cmd.Execute())
}

func TestServeCommand_InvalidConfig(t *testing.T) {
	t.Setenv("PERMCACHE_CACHE_DEFAULT_TTL", "0s")

	cmd := newRootCommand()
	cmd.SetArgs([]string{"serve"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache.default_ttl")
}

func TestConsumeCommand_MissingConfigFile(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetArgs([]string{"consume", "--config", t.TempDir() + "/missing.yaml"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestTopologyFromConfig(t *testing.T) {
	q := config.QueueConfig{
		Exchange:             "ex",
		RoutingKey:           "rk",
		Queue:                "q",
		DeadLetterExchange:   "dlx",
		DeadLetterQueue:      "dlq",
		DeadLetterRoutingKey: "dead",
	}

	topo := topology(q)

	assert.Equal(t, "ex", topo.Exchange)
	assert.Equal(t, "rk", topo.RoutingKey)
	assert.Equal(t, "q", topo.Queue)
	assert.Equal(t, "dlx", topo.DeadLetterExchange)
	assert.Equal(t, "dlq", topo.DeadLetterQueue)
	assert.Equal(t, "dead", topo.DeadLetterRoutingKey)
	assert.NoError(t, topo.Validate())
}

func TestRetryPolicyFromConfig(t *testing.T) {
	p := retryPolicy(config.BrokerConfig{RetryAttempts: 5, RetryBaseDelay: 250 * time.Millisecond})

	assert.Equal(t, uint(5), p.Retries)
	assert.Equal(t, 500*time.Millisecond, p.Delay(1))
}

func TestAppTTLs(t *testing.T) {
	a := &app{cfg: &config.Config{Cache: config.CacheConfig{
		DefaultTTL:    time.Hour,
		PermissionTTL: 0,
		SessionTTL:    20 * time.Minute,
		VersionTTL:    24 * time.Hour,
	}}}

	ttls := a.ttls()

	assert.Equal(t, time.Hour, ttls.Permission)
	assert.Equal(t, 20*time.Minute, ttls.Session)
	assert.Equal(t, 24*time.Hour, ttls.Version)
}

func TestBindFlags(t *testing.T) {
	t.Setenv("PERMCACHE_OBSERVABILITY_LOG_LEVEL", "warn")

	opts := &rootOptions{v: config.NewViper()}
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log-level", "info", "")
	flags.String("log-format", "json", "")
	bindFlags(opts.v, flags, map[string]string{
		"log-level":  "observability.log_level",
		"log-format": "observability.log_format",
		"missing":    "observability.missing",
	})

	cfg, _, err := opts.load()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Observability.LogLevel, "unset flag must not override environment")

	require.NoError(t, flags.Parse([]string{"--log-level", "debug", "--log-format", "text"}))
	cfg, logger, err := opts.load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
	assert.Equal(t, "text", cfg.Observability.LogFormat)
	assert.Equal(t, "debug", logger.GetLevel().String())
}
