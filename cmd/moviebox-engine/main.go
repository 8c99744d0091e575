// Command moviebox-engine runs the aggregation/parsing daemon: it loads a
// daemon config file, resolves the active site config (C9), wires the
// Fetcher/Cache/Spider Manager/Hook Chain/Extractor Pipeline/Orchestrator
// chain, and serves the Local Proxy (C10) plus an optional metrics server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/moviebox/engine/internal/cache"
	"github.com/moviebox/engine/internal/common/metricsserver"
	"github.com/moviebox/engine/internal/common/redis"
	"github.com/moviebox/engine/internal/common/yamlutil"
	"github.com/moviebox/engine/internal/extractor"
	"github.com/moviebox/engine/internal/fetcher"
	"github.com/moviebox/engine/internal/hooks"
	"github.com/moviebox/engine/internal/logging"
	"github.com/moviebox/engine/internal/metrics"
	"github.com/moviebox/engine/internal/orchestrator"
	"github.com/moviebox/engine/internal/proxy"
	"github.com/moviebox/engine/internal/siteconfig"
	"github.com/moviebox/engine/internal/spidermgr"
	"github.com/moviebox/engine/internal/vod"
)

// daemonConfig is the YAML-loaded ambient configuration (§6's "CLI surface"
// plus the daemon-level settings SPEC_FULL.md's ambient stack adds on top
// of the CLI flags: remote index URL, metrics, and the optional Redis lock
// backend for multi-process cache sharing).
type daemonConfig struct {
	Port           int    `yaml:"port"`
	CacheDir       string `yaml:"cacheDir"`
	LogLevel       string `yaml:"logLevel"`
	SiteConfigURL  string `yaml:"siteConfigUrl"`
	RemoteIndexURL string `yaml:"remoteIndexUrl"`
	ConfigRefresh  string `yaml:"configRefresh"`
	MetricsEnabled bool   `yaml:"metricsEnabled"`
	MetricsListen  string `yaml:"metricsListen"`
	MetricsPath    string `yaml:"metricsPath"`
	RedisAddr      string `yaml:"redisAddr"` // empty disables the distributed lock backend
}

func defaultDaemonConfig() daemonConfig {
	return daemonConfig{
		Port:           9978, // §4.10 default loopback port
		CacheDir:       "./data",
		LogLevel:       logging.LevelInfo,
		ConfigRefresh:  "10m",
		MetricsEnabled: false,
		MetricsListen:  "127.0.0.1:9979",
		MetricsPath:    "/metrics",
	}
}

func loadDaemonConfig(path string) (daemonConfig, error) {
	cfg := defaultDaemonConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read daemon config: %w", err)
	}
	if err := yamlutil.UnmarshalStrict(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse daemon config: %w", err)
	}
	return cfg, nil
}

// logLevelListener switches the daemon logger's level when a newly
// installed config epoch carries its own `flags.logLevel` (§4.9's epoch
// notification fan-out, applied to the ambient logger).
type logLevelListener struct {
	logger *logging.DynamicLogger
}

func (l *logLevelListener) OnEpochChange(cfg vod.Config) {
	if level, ok := cfg.Flags["logLevel"]; ok && level != "" {
		l.logger.SetLevel(level)
	}
}

func main() {
	os.Exit(run())
}

func run() int {
	daemonConfigPath := flag.String("daemon-config", "", "path to the daemon YAML config (optional)")
	configURL := flag.String("config", "", "user-specified site config URL, highest priority in the resolver chain")
	port := flag.Int("port", 0, "Local Proxy listen port (overrides daemon config)")
	cacheDir := flag.String("cache-dir", "", "cache root directory (overrides daemon config)")
	logLevel := flag.String("log-level", "", "log level: debug|info|warn|error (overrides daemon config)")
	flag.Parse()

	cfg, err := loadDaemonConfig(*daemonConfigPath)
	if err != nil {
		log.Printf("moviebox-engine: fatal config error: %v", err)
		return 1
	}
	if *configURL != "" {
		cfg.SiteConfigURL = *configURL
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *cacheDir != "" {
		cfg.CacheDir = *cacheDir
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	refreshInterval, err := time.ParseDuration(cfg.ConfigRefresh)
	if err != nil || refreshInterval <= 0 {
		refreshInterval = 10 * time.Minute
	}

	dynLogger, err := logging.New(logging.Config{Level: cfg.LogLevel, Format: logging.FormatConsole})
	if err != nil {
		log.Printf("moviebox-engine: fatal config error: building logger: %v", err)
		return 1
	}
	defer dynLogger.Sync()
	logger := dynLogger.Logger

	logger.Info("starting moviebox-engine",
		zap.Int("port", cfg.Port),
		zap.String("cacheDir", cfg.CacheDir),
		zap.String("logLevel", cfg.LogLevel))

	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		logger.Error("fatal config error: create cache dir", zap.Error(err))
		return 1
	}

	f := fetcher.New(fetcher.Options{
		DefaultUserAgent: "Mozilla/5.0 (MovieboxEngine)",
		SSRFProtection:   true,
	}, logger)

	var lockBackend cache.DistributedLock
	if cfg.RedisAddr != "" {
		redisClient, err := redis.NewClient(redis.Config{Addr: cfg.RedisAddr}, logger)
		if err != nil {
			logger.Error("fatal config error: connect redis lock backend", zap.Error(err))
			return 1
		}
		defer redisClient.Close()
		lockBackend = redisClient
	}

	c, err := cache.New(cache.Config{
		MemoryCapacity: 200,
		DiskDir:        filepath.Join(cfg.CacheDir, "badger"),
		LockBackend:    lockBackend,
	}, logger)
	if err != nil {
		logger.Error("fatal config error: build cache", zap.Error(err))
		return 1
	}
	defer c.Close()

	historyDB, err := siteconfig.OpenHistoryDB(filepath.Join(cfg.CacheDir, "history.db"))
	if err != nil {
		logger.Error("fatal config error: open history db", zap.Error(err))
		return 1
	}
	defer historyDB.Close()

	resolver := siteconfig.New(f, logger, siteconfig.Options{
		UserConfigURL:  cfg.SiteConfigURL,
		RemoteIndexURL: cfg.RemoteIndexURL,
		BundledDefault: siteconfig.BundledDefault(),
		SnapshotPath:   filepath.Join(cfg.CacheDir, "config.json"),
		HistoryDB:      historyDB,
	})
	resolver.Register(&logLevelListener{logger: dynLogger})

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	if err := resolver.Resolve(startCtx); err != nil {
		logger.Warn("initial config resolve failed, continuing on bundled default", zap.Error(err))
	}
	cancelStart()

	active := resolver.Active()

	hookChain := hooks.NewChain(hooks.NewAdBlockHook(active.AdHostPatterns))

	pushExtractor := &extractor.PushExtractor{
		Notify: func(target string) { logger.Info("push extractor notified", zap.String("target", target)) },
	}
	pipeline := extractor.NewPipeline(active.Parsers, extractor.NewParserResolver(f), pushExtractor)

	spiders := spidermgr.New(f, logger)

	orch := orchestrator.New(c, spiders, pipeline, hookChain, resolver, logger)

	m := metrics.New("moviebox", logger)
	orch.SetMetrics(m)

	localProxy := proxy.New(f, pipeline, orch, logger, proxy.Options{
		Addr: fmt.Sprintf(":%d", cfg.Port),
	})
	localProxy.SetMetrics(m)

	metricsSrv, err := metricsserver.StartMetricsServer(cfg.MetricsEnabled, cfg.MetricsListen, cfg.MetricsPath, m, logger)
	if err != nil {
		logger.Error("fatal config error: start metrics server", zap.Error(err))
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runConfigRefreshLoop(ctx, resolver, refreshInterval, logger)
	go runCacheSweepLoop(ctx, c, logger)

	serverErrors := make(chan error, 1)
	go func() {
		if err := localProxy.ListenAndServe(); err != nil {
			serverErrors <- err
		}
	}()

	// Give the listener a moment to either succeed or fail to bind.
	time.Sleep(100 * time.Millisecond)
	select {
	case err := <-serverErrors:
		logger.Error("local proxy failed to bind", zap.Error(err))
		return 2
	default:
	}

	logger.Info("moviebox-engine started", zap.String("addr", localProxy.Addr()))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutting down moviebox-engine")
	case err := <-serverErrors:
		logger.Error("local proxy stopped unexpectedly", zap.Error(err))
	}

	cancel()
	if err := localProxy.Shutdown(); err != nil {
		logger.Error("local proxy shutdown error", zap.Error(err))
	}
	if metricsSrv != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		if err := metricsSrv.ShutdownWithContext(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", zap.Error(err))
		}
		cancelShutdown()
	}
	spiders.DestroyAll()

	logger.Info("moviebox-engine stopped")
	return 0
}

// runConfigRefreshLoop periodically re-resolves the active site config, the
// way §4.9's priority chain is meant to be re-run rather than resolved
// once at startup (a remote index may publish a new document at any time).
func runConfigRefreshLoop(ctx context.Context, resolver *siteconfig.Resolver, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refreshCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			if err := resolver.Resolve(refreshCtx); err != nil {
				logger.Warn("periodic config resolve failed", zap.Error(err))
			}
			cancel()
		}
	}
}

// runCacheSweepLoop triggers ClearExpired on an hourly tick as a backstop
// alongside the Cache package's own internal sweep goroutine: a visible,
// independently cancellable loop in main rather than a hidden timer.
func runCacheSweepLoop(ctx context.Context, c *cache.Cache, logger *zap.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := c.ClearExpired()
			if n > 0 {
				logger.Info("cache sweep cleared expired entries", zap.Int("count", n))
			}
		}
	}
}
