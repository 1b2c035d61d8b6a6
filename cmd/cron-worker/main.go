package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/courseforge/courseforge-backend/internal/catalog"
	"github.com/courseforge/courseforge-backend/internal/cron"
	"github.com/courseforge/courseforge-backend/internal/enrollments"
	"github.com/courseforge/courseforge-backend/internal/notifications"
	"github.com/courseforge/courseforge-backend/internal/payments"
	"github.com/courseforge/courseforge-backend/internal/vouchers"
	"github.com/courseforge/courseforge-backend/pkg/config"
	"github.com/courseforge/courseforge-backend/pkg/db"
	"github.com/courseforge/courseforge-backend/pkg/instance"
	"github.com/courseforge/courseforge-backend/pkg/logger"
	"github.com/courseforge/courseforge-backend/pkg/metrics"
	"github.com/courseforge/courseforge-backend/pkg/migrate"
	"github.com/courseforge/courseforge-backend/pkg/outbox"
	"github.com/courseforge/courseforge-backend/pkg/redis"
)

const serviceKind = "cron-worker"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceKind})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(cron.LockName(cfg.App.Env)), cron.LockTTL(cfg.Cron.LockTTL, cfg.Cron.Interval))
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry, err := buildRegistry(cfg, logg, dbClient, metricsCollector)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceKind,
		"instance":    instance.GetID(),
		"interval":    cfg.Cron.Interval.String(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

// buildRegistry wires the expiration sweep and housekeeping jobs. The sweep
// goes through the enrollment service so expiry shares the state machine used
// by approvals.
func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, cronMetrics *metrics.CronJobMetrics) (*cron.Registry, error) {
	conn := dbClient.DB()
	outboxRepo := outbox.NewRepository(conn)
	outboxSvc := outbox.NewService(outboxRepo, logg)

	notificationsSvc, err := notifications.NewService(notifications.ServiceParams{
		Repo:   notifications.NewRepository(conn),
		Tx:     dbClient,
		Outbox: outboxSvc,
		Logger: logg,
	})
	if err != nil {
		return nil, err
	}

	catalogSvc, err := catalog.NewService(catalog.NewRepository(conn))
	if err != nil {
		return nil, err
	}
	vouchersSvc, err := vouchers.NewService(vouchers.ServiceParams{
		Repo:    vouchers.NewRepository(conn),
		Tx:      dbClient,
		Courses: catalogSvc,
		Outbox:  outboxSvc,
		Logger:  logg,
	})
	if err != nil {
		return nil, err
	}

	enrollmentRepo := enrollments.NewRepository(conn)
	transitions, err := enrollments.NewTransitions(enrollments.TransitionsParams{
		Repo:   enrollmentRepo,
		Access: catalogSvc,
		Outbox: outboxSvc,
	})
	if err != nil {
		return nil, err
	}
	paymentsSvc, err := payments.NewService(payments.ServiceParams{
		Repo:        payments.NewRepository(conn),
		Tx:          dbClient,
		Enrollments: transitions,
		Outbox:      outboxSvc,
		Notifier:    notificationsSvc,
		Logger:      logg,
	})
	if err != nil {
		return nil, err
	}
	enrollmentsSvc, err := enrollments.NewService(enrollments.ServiceParams{
		Repo:        enrollmentRepo,
		Tx:          dbClient,
		Transitions: transitions,
		Courses:     catalogSvc,
		Vouchers:    vouchersSvc,
		Payments:    paymentsSvc,
		Outbox:      outboxSvc,
		Notifier:    notificationsSvc,
		Logger:      logg,
	})
	if err != nil {
		return nil, err
	}

	expirationJob, err := cron.NewEnrollmentExpirationJob(cron.EnrollmentExpirationJobParams{
		Logger:      logg,
		DB:          dbClient,
		Enrollments: enrollmentsSvc,
		Notifier:    notificationsSvc,
		Metrics:     cronMetrics,
	})
	if err != nil {
		return nil, err
	}
	cleanupJob, err := cron.NewNotificationCleanupJob(cron.NotificationCleanupJobParams{
		Logger:        logg,
		DB:            dbClient,
		Notifications: notificationsSvc,
		Retention:     days(cfg.Cron.NotificationRetention),
	})
	if err != nil {
		return nil, err
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outboxRepo,
		Retention:  days(cfg.Cron.OutboxRetention),
	})
	if err != nil {
		return nil, err
	}

	return cron.NewRegistry(expirationJob, cleanupJob, retentionJob)
}

func days(d time.Duration) int {
	return int(d / (24 * time.Hour))
}
