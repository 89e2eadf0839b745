package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/zaavg/storefront/api/controllers"
	"github.com/zaavg/storefront/api/middleware"
	"github.com/zaavg/storefront/api/routes"
	"github.com/zaavg/storefront/internal/cart"
	"github.com/zaavg/storefront/internal/catalog"
	"github.com/zaavg/storefront/internal/checkout"
	"github.com/zaavg/storefront/internal/events"
	"github.com/zaavg/storefront/internal/wishlist"
	"github.com/zaavg/storefront/pkg/config"
	"github.com/zaavg/storefront/pkg/db"
	"github.com/zaavg/storefront/pkg/env"
	"github.com/zaavg/storefront/pkg/instance"
	"github.com/zaavg/storefront/pkg/logger"
	"github.com/zaavg/storefront/pkg/metrics"
	"github.com/zaavg/storefront/pkg/migrate"
	"github.com/zaavg/storefront/pkg/redis"
	"github.com/zaavg/storefront/pkg/square"
	"github.com/zaavg/storefront/pkg/yookassa"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			err = multierr.Append(err, closers[i]())
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	cartMetrics := metrics.NewCartMetrics(registry)
	catalogMetrics := metrics.NewCatalogMetrics(registry)
	paymentMetrics := metrics.NewPaymentMetrics(registry)

	readiness := map[string]controllers.Pinger{}

	var redisClient *redis.Client
	if cfg.NeedsRedis() || cfg.Redis.URL != "" || cfg.Redis.Address != "" {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return fmt.Errorf("bootstrap redis: %w", err)
		}
		closers = append(closers, redisClient.Close)
		readiness["redis"] = redisClient
	}

	storage, wishlistStorage, err := buildStorage(ctx, cfg, logg, redisClient, cartMetrics, &closers)
	if err != nil {
		return err
	}
	readiness["cart_storage"] = storage

	catalogSvc, err := catalog.NewService(
		catalog.NewSheetSource(cfg.Catalog.SourceURL, cfg.Catalog.HeaderName, cfg.Catalog.FetchTimeout),
		logg,
		catalogMetrics,
	)
	if err != nil {
		return fmt.Errorf("build catalog: %w", err)
	}
	// An unreachable feed leaves the catalog empty; Run keeps retrying.
	if refreshErr := catalogSvc.Refresh(ctx); refreshErr != nil {
		logg.Error(ctx, "initial catalog refresh failed", refreshErr)
	}
	go catalogSvc.Run(ctx, cfg.Catalog.RefreshInterval)

	bus := events.NewBus(logg)
	closers = append(closers, bus.Close)
	if cfg.Events.RedisBridge {
		bridge := events.NewRedisBridge(redisClient, cfg.Events.Channel, bus, logg)
		if err := bridge.Start(ctx); err != nil {
			return fmt.Errorf("start event bridge: %w", err)
		}
		closers = append(closers, bridge.Close)
	}

	carts, err := cart.NewService(storage, catalogSvc, bus, cart.Options{
		UnlimitedStock: cfg.Cart.UnlimitedStock,
		Logger:         logg,
		Metrics:        cartMetrics,
	})
	if err != nil {
		return fmt.Errorf("build cart service: %w", err)
	}
	remover := cart.NewDeferredRemover(carts, cfg.Cart.UndoWindow, logg)
	closers = append(closers, func() error {
		remover.Stop()
		return nil
	})

	wishlists, err := wishlist.NewService(wishlistStorage, catalogSvc, logg)
	if err != nil {
		return fmt.Errorf("build wishlist service: %w", err)
	}

	gateway, kassa, err := buildGateway(ctx, cfg, logg)
	if err != nil {
		return err
	}
	var notifications controllers.YooKassaNotificationHandler
	if kassa != nil {
		handler, err := checkout.NewYooKassaNotifications(kassa, logg, paymentMetrics)
		if err != nil {
			return fmt.Errorf("build payment notifications: %w", err)
		}
		notifications = handler
	}
	checkoutSvc, err := checkout.NewService(carts, gateway, checkout.Options{
		Currency:  cfg.Payment.Currency,
		ReturnURL: cfg.Payment.ReturnURL,
		Logger:    logg,
		Metrics:   paymentMetrics,
	})
	if err != nil {
		return fmt.Errorf("build checkout service: %w", err)
	}

	var replay middleware.IdempotencyStore
	if redisClient != nil {
		replay = redisClient
	}

	handler := routes.NewRouter(cfg, logg, routes.Dependencies{
		Catalog:     catalogSvc,
		Carts:       carts,
		Remover:     remover,
		Bus:         bus,
		Checkout:    checkoutSvc,
		Wishlists:   wishlists,
		Payments:    notifications,
		Idempotency: replay,
		Readiness:   readiness,
		Gatherer:    registry,
	})

	addr := ":" + env.FirstOf(cfg.App.Port, "PORT")

	// Request contexts derive from ctx so open event streams end on shutdown.
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	logCtx := logg.WithFields(ctx, map[string]any{
		"env":       cfg.App.Env,
		"addr":      addr,
		"instance":  instance.GetID(),
		"cart":      storage.Name(),
		"payments":  gateway.Name(),
		"redis":     redisClient != nil,
		"sse_relay": cfg.Events.RedisBridge,
	})
	logg.Info(logCtx, "starting api server")

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logg.Info(logCtx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildStorage picks the cart and wishlist storages for the configured
// driver. Both share one backend.
func buildStorage(ctx context.Context, cfg *config.Config, logg *logger.Logger, redisClient *redis.Client, m *metrics.CartMetrics, closers *[]func() error) (cart.Storage, wishlist.Storage, error) {
	switch cfg.Cart.Driver {
	case config.CartDriverRedis:
		carts := cart.NewRedisStorage(redisClient, cart.RedisStorageOptions{
			SlotPrefix: cfg.Cart.SlotPrefix,
			TTL:        cfg.Cart.SlotTTL,
			MaxRetries: cfg.Cart.MaxRetries,
		}, logg, m)
		return carts, wishlist.NewRedisStorage(redisClient, cfg.Cart.SlotTTL, cfg.Cart.MaxRetries, logg), nil
	case config.CartDriverPostgres, config.CartDriverSQLite:
		dbClient, err := db.New(ctx, cfg.Cart.Driver, cfg.DB, logg)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap database: %w", err)
		}
		*closers = append(*closers, dbClient.Close)
		if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
			return nil, nil, fmt.Errorf("run dev migrations: %w", err)
		}
		carts := cart.NewSQLStorage(dbClient.DB(), cart.SQLStorageOptions{
			Driver:     cfg.Cart.Driver,
			SlotPrefix: cfg.Cart.SlotPrefix,
			MaxRetries: cfg.Cart.MaxRetries,
		}, logg, m)
		return carts, wishlist.NewSQLStorage(dbClient.DB(), cfg.Cart.Driver, cfg.Cart.MaxRetries, logg), nil
	default:
		return cart.NewMemoryStorage(logg), wishlist.NewMemoryStorage(logg), nil
	}
}

// buildGateway returns the YooKassa client alongside the gateway so payment
// notifications can be verified; it is nil for Square.
func buildGateway(ctx context.Context, cfg *config.Config, logg *logger.Logger) (checkout.Gateway, *yookassa.Client, error) {
	switch cfg.Payment.ProviderName() {
	case config.PaymentProviderSquare:
		client, err := square.NewClient(ctx, cfg.Square, logg)
		if err != nil {
			return nil, nil, fmt.Errorf("build square client: %w", err)
		}
		gateway, err := checkout.NewSquareGateway(client)
		return gateway, nil, err
	default:
		client, err := yookassa.NewClient(
			cfg.YooKassa.ShopID,
			cfg.YooKassa.SecretKey,
			yookassa.WithBaseURL(cfg.YooKassa.BaseURL),
			yookassa.WithTimeout(cfg.YooKassa.Timeout),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("build yookassa client: %w", err)
		}
		gateway, err := checkout.NewYooKassaGateway(client)
		return gateway, client, err
	}
}
