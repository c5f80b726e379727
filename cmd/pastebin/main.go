package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"pastebin-lite/internal/config"
	"pastebin-lite/internal/httpserver"
	"pastebin-lite/internal/id"
	"pastebin-lite/internal/logging"
	"pastebin-lite/internal/paste"
	"pastebin-lite/internal/security"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "env file: %v\n", err)
		os.Exit(2)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	parseFlags(cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	if err := run(cfg); err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	logger := logging.Init(cfg.LogLevel, cfg.DevLog)

	store, err := openStore(cfg)
	if err != nil {
		logger.Error().Err(err).Str("driver", cfg.StoreDriver).Msg("failed opening data store")
		return err
	}
	defer store.Close()
	logger.Info().Str("driver", cfg.StoreDriver).Int("cache_size", cfg.CacheSize).Msg("store ready")

	hasher, err := security.NewHasher(cfg.Argon2)
	if err != nil {
		logger.Error().Err(err).Msg("failed to construct password hasher")
		return err
	}
	svc, err := paste.New(paste.Config{
		Store:       store,
		IDGenerator: id.New(cfg.IDLength),
		Hasher:      hasher,
		MaxBytes:    cfg.MaxBytes,
		Logger:      &logger,
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to construct paste service")
		return err
	}

	srv, err := httpserver.New(httpserver.Config{
		Service:      svc,
		Store:        store,
		BaseURL:      cfg.BaseURL,
		TrustProxy:   cfg.TrustProxy,
		RevealReason: cfg.RevealReason,
		TestMode:     cfg.TestMode,
		Logger:       &logger,
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to construct server")
		return err
	}
	if cfg.TestMode {
		logger.Warn().Msg("test mode enabled: " + httpserver.TestNowHeader + " overrides the clock")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srvHTTP := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", cfg.Addr).Msg("listening")
		if err := srvHTTP.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srvHTTP.Shutdown(shutdownCtx)
	})
	if cfg.JanitorInterval > 0 {
		g.Go(func() error {
			return httpserver.RunJanitor(gctx, store, cfg.JanitorInterval, logger)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		return err
	}
	logger.Info().Msg("shutdown complete")
	return nil
}

// parseFlags lets command line flags override the environment.
func parseFlags(cfg *config.Config) {
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	flag.StringVar(&cfg.StoreDriver, "store", cfg.StoreDriver, "store driver: bolt, sqlite, redis, postgres or memory")
	flag.StringVar(&cfg.DataPath, "data", cfg.DataPath, "path to data file (bolt, sqlite)")
	flag.StringVar(&cfg.RedisURL, "redis-url", cfg.RedisURL, "redis url (redis store)")
	flag.StringVar(&cfg.PostgresDSN, "postgres-dsn", cfg.PostgresDSN, "postgres dsn (postgres store)")
	flag.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "canonical base URL (optional)")
	flag.IntVar(&cfg.MaxBytes, "max-bytes", cfg.MaxBytes, "maximum paste size in bytes")
	flag.BoolVar(&cfg.TrustProxy, "behind-proxy", cfg.TrustProxy, "trust proxy headers for client ip and scheme")
	flag.BoolVar(&cfg.RevealReason, "reveal-reason", cfg.RevealReason, "tell clients whether a paste expired or ran out of views")
	flag.BoolVar(&cfg.TestMode, "test-mode", cfg.TestMode, "honour the "+httpserver.TestNowHeader+" request header")
	flag.IntVar(&cfg.CacheSize, "cache-size", cfg.CacheSize, "LRU read cache entries, 0 disables")
	flag.DurationVar(&cfg.JanitorInterval, "janitor-interval", cfg.JanitorInterval, "purge dead pastes this often, 0 disables")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	flag.BoolVar(&cfg.DevLog, "dev-log", cfg.DevLog, "human readable logs")
	flag.Parse()
}
