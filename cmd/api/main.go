package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/courseforge/courseforge-backend/api/routes"
	"github.com/courseforge/courseforge-backend/internal/catalog"
	"github.com/courseforge/courseforge-backend/internal/enrollments"
	"github.com/courseforge/courseforge-backend/internal/evidence"
	"github.com/courseforge/courseforge-backend/internal/notifications"
	"github.com/courseforge/courseforge-backend/internal/payments"
	"github.com/courseforge/courseforge-backend/internal/vouchers"
	squarewebhook "github.com/courseforge/courseforge-backend/internal/webhooks/square"
	"github.com/courseforge/courseforge-backend/pkg/config"
	"github.com/courseforge/courseforge-backend/pkg/db"
	"github.com/courseforge/courseforge-backend/pkg/instance"
	"github.com/courseforge/courseforge-backend/pkg/logger"
	"github.com/courseforge/courseforge-backend/pkg/metrics"
	"github.com/courseforge/courseforge-backend/pkg/migrate"
	"github.com/courseforge/courseforge-backend/pkg/outbox"
	"github.com/courseforge/courseforge-backend/pkg/redis"
	"github.com/courseforge/courseforge-backend/pkg/square"
	"github.com/courseforge/courseforge-backend/pkg/storage/gcs"
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

	gcsClient, err := gcs.NewClient(context.Background(), cfg.GCS, cfg.GCP, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap gcs", err)
		os.Exit(1)
	}
	defer func() {
		if err := gcsClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing gcs", err)
		}
	}()

	var squareClient *square.Client
	if cfg.Square.Enabled() {
		squareClient, err = square.NewClient(context.Background(), cfg.Square, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap square", err)
			os.Exit(1)
		}
	} else {
		logg.Warn(context.Background(), "square credentials missing; card capture disabled")
	}

	params, err := buildRouterParams(cfg, logg, dbClient, redisClient, gcsClient, squareClient)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(params),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	go func() {
		<-sigCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}()

	logg.Info(ctx, "starting api server")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server shut down gracefully")
}

// buildRouterParams wires repositories and services in dependency order:
// catalog, vouchers, enrollment transitions, payments, enrollments.
func buildRouterParams(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	gcsClient *gcs.Client,
	squareClient *square.Client,
) (routes.Params, error) {
	conn := dbClient.DB()
	outboxSvc := outbox.NewService(outbox.NewRepository(conn), logg)

	notificationsSvc, err := notifications.NewService(notifications.ServiceParams{
		Repo:   notifications.NewRepository(conn),
		Tx:     dbClient,
		Outbox: outboxSvc,
		Logger: logg,
	})
	if err != nil {
		return routes.Params{}, err
	}

	catalogSvc, err := catalog.NewService(catalog.NewRepository(conn))
	if err != nil {
		return routes.Params{}, err
	}

	vouchersSvc, err := vouchers.NewService(vouchers.ServiceParams{
		Repo:    vouchers.NewRepository(conn),
		Tx:      dbClient,
		Courses: catalogSvc,
		Outbox:  outboxSvc,
		Metrics: metrics.NewVoucherMetrics(prometheus.DefaultRegisterer),
		Logger:  logg,
	})
	if err != nil {
		return routes.Params{}, err
	}

	enrollmentRepo := enrollments.NewRepository(conn)
	transitions, err := enrollments.NewTransitions(enrollments.TransitionsParams{
		Repo:   enrollmentRepo,
		Access: catalogSvc,
		Outbox: outboxSvc,
	})
	if err != nil {
		return routes.Params{}, err
	}

	paymentParams := payments.ServiceParams{
		Repo:        payments.NewRepository(conn),
		Tx:          dbClient,
		Enrollments: transitions,
		Outbox:      outboxSvc,
		Notifier:    notificationsSvc,
		Logger:      logg,
	}
	if squareClient != nil {
		paymentParams.Gateway = squareClient
	}
	paymentsSvc, err := payments.NewService(paymentParams)
	if err != nil {
		return routes.Params{}, err
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
		return routes.Params{}, err
	}

	evidenceSvc, err := evidence.NewService(evidence.ServiceParams{
		Signer:      gcsClient,
		Bucket:      gcsClient.DefaultBucket(),
		Prefix:      cfg.GCS.EvidencePrefix,
		UploadTTL:   cfg.GCS.UploadURLExpiry,
		DownloadTTL: cfg.GCS.DownloadURLExpiry,
	})
	if err != nil {
		return routes.Params{}, err
	}

	params := routes.Params{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		Redis:         redisClient,
		Storage:       gcsClient,
		Metrics:       promhttp.Handler(),
		Enrollments:   enrollmentsSvc,
		Payments:      paymentsSvc,
		Vouchers:      vouchersSvc,
		Notifications: notificationsSvc,
		Evidence:      evidenceSvc,
	}

	if squareClient != nil {
		webhookSvc, err := squarewebhook.NewService(squarewebhook.ServiceParams{
			Payments: paymentsSvc,
			Logger:   logg,
		})
		if err != nil {
			return routes.Params{}, err
		}
		guard, err := squarewebhook.NewIdempotencyGuard(redisClient, cfg.Eventing.WebhookIdempotencyTTL, "square-webhook")
		if err != nil {
			return routes.Params{}, err
		}
		params.SquareWebhook = webhookSvc
		params.SquareGuard = guard
		params.SquareClient = squareClient
	}

	return params, nil
}
