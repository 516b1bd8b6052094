package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/hirewire/admission/config"
	"github.com/hirewire/admission/middleware"
	"github.com/hirewire/admission/pkg/httpserver"
	"github.com/hirewire/admission/pkg/logger"
	"github.com/hirewire/admission/pkg/ratelimit"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cfg config.Config
	config.MustLoad(&cfg)

	log := newLogger(cfg)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = rdb.Close() }()

	store := ratelimit.NewRedisStore(rdb,
		ratelimit.WithKeyPrefix(cfg.Redis.KeyPrefix),
		ratelimit.WithOpTimeout(cfg.Redis.OpTimeout),
		ratelimit.WithPingInterval(cfg.Redis.PingInterval),
		ratelimit.WithRedisStoreLogger(log.With("component", "ratelimit.store")),
	)

	registry, err := ratelimit.NewRegistry(cfg.Limits.Policies()...)
	if err != nil {
		log.Error("invalid rate limit policies", logger.Error(err))
		os.Exit(1)
	}

	var speed *ratelimit.SpeedLimiter
	if cfg.Speed.Enabled {
		speed, err = ratelimit.NewSpeedLimiter(store, cfg.Speed.Limiter(),
			ratelimit.WithSpeedLimiterLogger(log.With("component", "ratelimit.speed")))
		if err != nil {
			log.Error("invalid speed limiter settings", logger.Error(err))
			os.Exit(1)
		}
	}

	gate := middleware.NewBypass(middleware.WithAllowlistedAddrs(cfg.Bypass.Allowlist...))

	mux, err := newRouter(routerDeps{
		store:    store,
		registry: registry,
		speed:    speed,
		gate:     gate,
		logger:   log,
	})
	if err != nil {
		log.Error("failed to build router", logger.Error(err))
		os.Exit(1)
	}

	srv, err := httpserver.NewFromConfig(cfg.Server, httpserver.WithLogger(log.With("component", "server")))
	if err != nil {
		log.Error("failed to create server", logger.Error(err))
		os.Exit(1)
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(store.Run(ctx))
	eg.Go(srv.Run(ctx, mux))

	log.Info("admission server started", "addr", cfg.Server.Addr, "env", cfg.Env)

	if err := eg.Wait(); err != nil {
		log.Error("server exited with error", logger.Error(err))
		os.Exit(1)
	}

	log.Info("admission server stopped")
}

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if cfg.Env == "development" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}

	return slog.New(handler).With("app", cfg.AppName)
}
