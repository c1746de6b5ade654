package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/freshora-backend/internal/cron"
	"github.com/angelmondragon/freshora-backend/internal/notifications"
	"github.com/angelmondragon/freshora-backend/internal/orders"
	"github.com/angelmondragon/freshora-backend/internal/pricing"
	product "github.com/angelmondragon/freshora-backend/internal/products"
	stripewebhook "github.com/angelmondragon/freshora-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/freshora-backend/pkg/config"
	"github.com/angelmondragon/freshora-backend/pkg/db"
	"github.com/angelmondragon/freshora-backend/pkg/logger"
	"github.com/angelmondragon/freshora-backend/pkg/metrics"
	"github.com/angelmondragon/freshora-backend/pkg/migrate"
	"github.com/angelmondragon/freshora-backend/pkg/outbox"
	"github.com/angelmondragon/freshora-backend/pkg/redis"
	pkgstripe "github.com/angelmondragon/freshora-backend/pkg/stripe"
)

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	if err := run(*once); err != nil {
		logg.Error(context.Background(), "cron worker exited with error", err)
		os.Exit(1)
	}
}

func run(once bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	cfg.Service.Kind = "cron-worker"

	logg := logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	catalog, err := product.NewCatalog(product.NewRepository(dbClient.DB()))
	if err != nil {
		return fmt.Errorf("create catalog: %w", err)
	}
	ordersRepo := orders.NewRepository(dbClient.DB())
	outboxRepo := outbox.NewRepository(dbClient.DB())
	dispatcher := notifications.NewDispatcher(notifications.NewSender(cfg.Sendgrid, logg), logg, cfg.Checkout.NotificationTimeout)
	defer dispatcher.Wait()

	reconciler, err := stripewebhook.NewReconciler(stripewebhook.ReconcilerParams{
		Verifier: stripeClient,
		TxRunner: dbClient,
		Orders:   ordersRepo,
		Resolver: pricing.NewResolver(catalog),
		Outbox:   outbox.NewService(outboxRepo, logg),
		Notifier: dispatcher,
		Metrics:  metrics.NewOrderMetrics(prometheus.DefaultRegisterer),
		Logger:   logg,
		Currency: stripeClient.Currency(),
	})
	if err != nil {
		return fmt.Errorf("create payment reconciler: %w", err)
	}

	sweep, err := cron.NewPendingPaymentSweepJob(cron.PendingPaymentSweepJobParams{
		Logger:    logg,
		Orders:    ordersRepo,
		Sessions:  stripeClient,
		Payments:  reconciler,
		Age:       cfg.Cron.PendingPaymentAge,
		BatchSize: cfg.Cron.SweepBatchSize,
	})
	if err != nil {
		return fmt.Errorf("create pending payment sweep: %w", err)
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outboxRepo,
	})
	if err != nil {
		return fmt.Errorf("create outbox retention job: %w", err)
	}

	lock, err := cron.NewRedisLock(redisClient, "cron-worker:"+envOrLocal(cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		return fmt.Errorf("create cron lock: %w", err)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(sweep, retention),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		return fmt.Errorf("create cron service: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if once {
		cycle, err := service.RunOnce(ctx)
		if err != nil {
			return fmt.Errorf("cron cycle: %w", err)
		}
		if len(cycle.Failed) > 0 {
			return fmt.Errorf("cron cycle finished with failed jobs: %v", cycle.Failed)
		}
		return nil
	}

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("cron worker stopped unexpectedly: %w", err)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
	return nil
}

func envOrLocal(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
