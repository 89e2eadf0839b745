package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zaavg/storefront/internal/cart"
	"github.com/zaavg/storefront/internal/cron"
	"github.com/zaavg/storefront/pkg/config"
	"github.com/zaavg/storefront/pkg/db"
	"github.com/zaavg/storefront/pkg/instance"
	"github.com/zaavg/storefront/pkg/logger"
	"github.com/zaavg/storefront/pkg/metrics"
	"github.com/zaavg/storefront/pkg/migrate"
	"github.com/zaavg/storefront/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"driver":   cfg.Cart.Driver,
		"instance": instance.GetID(),
	})

	if !cfg.Cart.UsesSQL() {
		logg.Info(ctx, "cart driver expires slots on its own; nothing to schedule")
		return
	}

	dbClient, err := db.New(ctx, cfg.Cart.Driver, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	lock, closeLock, err := buildLock(ctx, cfg, logg)
	if err != nil {
		logg.Error(ctx, "failed to create cron lock", err)
		os.Exit(1)
	}
	defer closeLock()

	storage := cart.NewSQLStorage(dbClient.DB(), cart.SQLStorageOptions{
		Driver:     cfg.Cart.Driver,
		SlotPrefix: cfg.Cart.SlotPrefix,
	}, logg, nil)
	retention, err := cron.NewCartRetentionJob(cron.CartRetentionJobParams{
		Logger:    logg,
		Storage:   storage,
		Retention: cfg.Cart.SlotTTL,
	})
	if err != nil {
		logg.Error(ctx, "failed to create cart retention job", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Jobs:     []cron.Job{retention},
		Lock:     lock,
		Metrics:  metrics.NewJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(ctx, "failed to create cron service", err)
		os.Exit(1)
	}

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

// buildLock uses Redis when configured so several workers can share a
// database; otherwise a process-local lock.
func buildLock(ctx context.Context, cfg *config.Config, logg *logger.Logger) (cron.Lock, func(), error) {
	if cfg.Redis.URL == "" && cfg.Redis.Address == "" {
		return cron.NewLocalLock(), func() {}, nil
	}
	client, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap redis: %w", err)
	}
	closeFn := func() {
		if err := client.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}
	lock, err := cron.NewRedisLock(client, client.LockKey("cron-worker:"+cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return lock, closeFn, nil
}
