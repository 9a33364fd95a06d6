// Command respcached is a demo entrypoint wiring respcache's Client and
// Engine against a real cache node over TCP. It does not implement a
// proxy itself (the proxy's connection pool and upstream routing are out
// of scope, per the package doc) — it exists to exercise Initialize,
// MakeCacheRequest/Set/Expire/ClearCache, and graceful shutdown end to
// end against a live Redis.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stumble/respcache"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "respcached",
		Short: "Demo runner for the respcache read-through cache engine",
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a respcached.yaml config file")
	cmd.AddCommand(newRunCmd(&configPath))
	cmd.AddCommand(newFlushCmd(&configPath))
	return cmd
}

func newRunCmd(configPath *string) *cobra.Command {
	var keyFlag string
	var valueFlag string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the configured cache node, issue one GET/SET cycle, and stay up until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd.Context(), *configPath, keyFlag, valueFlag)
		},
	}
	cmd.Flags().StringVar(&keyFlag, "key", "demo:key", "key to round-trip through the cache")
	cmd.Flags().StringVar(&valueFlag, "value", "hello", "value to populate on a miss")
	return cmd
}

func newFlushCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Connect and issue a single synchronous FLUSHALL against the cache node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFlush(cmd.Context(), *configPath)
		},
	}
}

// appConfig is the respcached-specific configuration envelope: connection
// address plus the respcache.Config options, loaded the way the teacher
// pack's baseball CLI loads its own Config via viper (environment, then
// config file, then defaults, in that precedence). No command-line flag
// is bound to these options.
type appConfig struct {
	Addr     string
	Username string
	Password string
	Cache    respcache.Config
}

func loadConfig(configPath string) (appConfig, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("respcached")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/respcached")
	}

	v.SetDefault("addr", "127.0.0.1:6379")
	v.SetDefault("username", "")
	v.SetDefault("password", "")
	v.SetDefault("cache.op_timeout_ms", 500)
	v.SetDefault("cache.ttl_seconds", 60)
	v.SetDefault("cache.enable_bcast_mode", false)
	v.SetDefault("cache.ignore_key_prefixes", []string{})
	v.SetDefault("cache.shards", 1)
	v.SetDefault("cache.disable_tracking", false)
	v.SetDefault("cache.disable_flushing", false)
	v.SetDefault("cache.max_buffer_size_before_flush", 16*1024)
	v.SetDefault("cache.buffer_flush_timeout_ms", 3)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	_ = v.BindEnv("addr", "RESPCACHED_ADDR")
	_ = v.BindEnv("password", "RESPCACHED_PASSWORD")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return appConfig{}, fmt.Errorf("respcached: reading config: %w", err)
		}
	}

	ignore := make([][]byte, 0)
	for _, p := range v.GetStringSlice("cache.ignore_key_prefixes") {
		ignore = append(ignore, []byte(p))
	}

	return appConfig{
		Addr:     v.GetString("addr"),
		Username: v.GetString("username"),
		Password: v.GetString("password"),
		Cache: respcache.Config{
			CacheCluster:             "respcached-demo",
			CacheOpTimeout:           time.Duration(v.GetInt("cache.op_timeout_ms")) * time.Millisecond,
			CacheTTL:                 time.Duration(v.GetInt("cache.ttl_seconds")) * time.Second,
			CacheEnableBcastMode:     v.GetBool("cache.enable_bcast_mode"),
			CacheIgnoreKeyPrefixes:   ignore,
			CacheShards:              v.GetInt("cache.shards"),
			CacheDisableTracking:     v.GetBool("cache.disable_tracking"),
			CacheDisableFlushing:     v.GetBool("cache.disable_flushing"),
			MaxBufferSizeBeforeFlush: v.GetInt("cache.max_buffer_size_before_flush"),
			BufferFlushTimeout:       time.Duration(v.GetInt("cache.buffer_flush_timeout_ms")) * time.Millisecond,
		},
	}, nil
}

// demoHost is the minimal EngineCallbacks implementation this binary
// needs: it just logs what the engine tells it, standing in for the
// proxy's per-connection request handler (§6).
type demoHost struct {
	done chan *respcache.Value
}

func (h *demoHost) OnCacheResponse(value *respcache.Value) {
	select {
	case h.done <- value:
	default:
	}
}

func (h *demoHost) OnCacheClose() {
	log.Warn().Msg("respcached: cache connection closed")
}

func connect(ctx context.Context, cfg appConfig, host respcache.EngineCallbacks) (*respcache.Client, *respcache.Engine, error) {
	metrics, err := respcache.NewMetricSet("respcached", prometheus.DefaultRegisterer)
	if err != nil {
		return nil, nil, fmt.Errorf("respcached: registering metrics: %w", err)
	}

	var enc respcache.BasicEncoder
	dec := &respcache.BasicDecoder{}

	client, err := respcache.DialAndInitialize(ctx, cfg.Addr, enc, dec, cfg.Cache, metrics, nil, cfg.Username, cfg.Password)
	if err != nil {
		return nil, nil, fmt.Errorf("respcached: dialing %s: %w", cfg.Addr, err)
	}
	engine := respcache.NewEngine(client, cfg.Cache, metrics, host)
	return client, engine, nil
}

func runDemo(ctx context.Context, configPath, key, value string) error {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	host := &demoHost{done: make(chan *respcache.Value, 1)}
	client, engine, err := connect(ctx, cfg, host)
	if err != nil {
		return err
	}
	defer client.Close()

	getReq := respcache.NewArray([]byte("GET"), []byte(key))
	if ok := engine.MakeCacheRequest(getReq); !ok {
		return fmt.Errorf("respcached: key %q is not cacheable under the configured ignore prefixes", key)
	}

	select {
	case v := <-host.done:
		if v == nil {
			log.Info().Str("key", key).Msg("cache miss, populating from demo value")
			engine.Set(getReq, respcache.NewBulkString([]byte(value)))
		} else {
			log.Info().Str("key", key).Bytes("value", v.Str).Msg("cache hit")
		}
	case <-time.After(cfg.Cache.CacheOpTimeout + time.Second):
		return fmt.Errorf("respcached: timed out waiting for cache response")
	}

	log.Info().Msg("respcached: running until interrupted (Ctrl-C)")
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()
	return nil
}

func runFlush(ctx context.Context, configPath string) error {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	host := &demoHost{done: make(chan *respcache.Value, 1)}
	client, engine, err := connect(ctx, cfg, host)
	if err != nil {
		return err
	}
	defer client.Close()

	engine.ClearCache(true)
	time.Sleep(cfg.Cache.CacheOpTimeout)
	log.Info().Msg("respcached: flush issued")
	return nil
}
