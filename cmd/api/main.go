package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/freshora-backend/api/routes"
	"github.com/angelmondragon/freshora-backend/internal/checkout"
	"github.com/angelmondragon/freshora-backend/internal/notifications"
	"github.com/angelmondragon/freshora-backend/internal/orders"
	"github.com/angelmondragon/freshora-backend/internal/pricing"
	product "github.com/angelmondragon/freshora-backend/internal/products"
	stripewebhook "github.com/angelmondragon/freshora-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/freshora-backend/pkg/config"
	"github.com/angelmondragon/freshora-backend/pkg/db"
	"github.com/angelmondragon/freshora-backend/pkg/instance"
	"github.com/angelmondragon/freshora-backend/pkg/logger"
	"github.com/angelmondragon/freshora-backend/pkg/metrics"
	"github.com/angelmondragon/freshora-backend/pkg/migrate"
	"github.com/angelmondragon/freshora-backend/pkg/outbox"
	"github.com/angelmondragon/freshora-backend/pkg/redis"
	pkgstripe "github.com/angelmondragon/freshora-backend/pkg/stripe"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	if err := run(); err != nil {
		logg.Error(context.Background(), "api exited with error", err)
		os.Exit(1)
	}
}

// run owns every resource it opens; deferred closes and the notification
// drain happen before it returns.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logg := logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		return fmt.Errorf("run dev migrations: %w", err)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		return fmt.Errorf("bootstrap stripe: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	orderMetrics := metrics.NewOrderMetrics(registry)

	catalog, err := product.NewCatalog(product.NewRepository(dbClient.DB()))
	if err != nil {
		return fmt.Errorf("create catalog: %w", err)
	}
	resolver := pricing.NewResolver(catalog)
	ordersRepo := orders.NewRepository(dbClient.DB())
	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	dispatcher := notifications.NewDispatcher(notifications.NewSender(cfg.Sendgrid, logg), logg, cfg.Checkout.NotificationTimeout)
	defer dispatcher.Wait()

	checkoutSvc, err := checkout.NewService(checkout.ServiceParams{
		TxRunner:   dbClient,
		Orders:     ordersRepo,
		Resolver:   resolver,
		Outbox:     outboxSvc,
		Gateway:    stripeClient,
		Notifier:   dispatcher,
		Metrics:    orderMetrics,
		Logger:     logg,
		Storefront: cfg.Storefront,
		Currency:   stripeClient.Currency(),
	})
	if err != nil {
		return fmt.Errorf("create checkout service: %w", err)
	}

	ordersSvc, err := orders.NewService(ordersRepo)
	if err != nil {
		return fmt.Errorf("create orders service: %w", err)
	}

	guard, err := stripewebhook.NewEventGuard(redisClient, cfg.Checkout.WebhookEventTTL)
	if err != nil {
		return fmt.Errorf("create webhook event guard: %w", err)
	}

	reconciler, err := stripewebhook.NewReconciler(stripewebhook.ReconcilerParams{
		Verifier: stripeClient,
		Guard:    guard,
		TxRunner: dbClient,
		Orders:   ordersRepo,
		Resolver: resolver,
		Outbox:   outboxSvc,
		Notifier: dispatcher,
		Metrics:  orderMetrics,
		Logger:   logg,
		Currency: stripeClient.Currency(),
	})
	if err != nil {
		return fmt.Errorf("create payment reconciler: %w", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":        cfg.App.Env,
		"addr":       addr,
		"instance":   instance.GetID(),
		"stripe_env": stripeClient.Environment(),
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:      cfg,
			Logger:      logg,
			DB:          dbClient,
			Redis:       redisClient,
			Idempotency: redisClient,
			Checkout:    checkoutSvc,
			Orders:      ordersSvc,
			Reconciler:  reconciler,
			Gatherer:    registry,
			HTTPMetrics: metrics.NewHTTPMetrics(registry),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server stopped unexpectedly: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("api server shutdown: %w", err)
		}
		logg.Info(ctx, "api server shut down gracefully")
		return nil
	}
}
