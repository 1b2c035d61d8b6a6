package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/courseforge/courseforge-backend/api/controllers"
	enrollmentcontrollers "github.com/courseforge/courseforge-backend/api/controllers/enrollments"
	paymentcontrollers "github.com/courseforge/courseforge-backend/api/controllers/payments"
	vouchercontrollers "github.com/courseforge/courseforge-backend/api/controllers/vouchers"
	webhookcontrollers "github.com/courseforge/courseforge-backend/api/controllers/webhooks"
	"github.com/courseforge/courseforge-backend/api/middleware"
	"github.com/courseforge/courseforge-backend/internal/enrollments"
	"github.com/courseforge/courseforge-backend/internal/evidence"
	"github.com/courseforge/courseforge-backend/internal/notifications"
	"github.com/courseforge/courseforge-backend/internal/payments"
	"github.com/courseforge/courseforge-backend/internal/vouchers"
	squarewebhook "github.com/courseforge/courseforge-backend/internal/webhooks/square"
	"github.com/courseforge/courseforge-backend/pkg/config"
	"github.com/courseforge/courseforge-backend/pkg/enums"
	"github.com/courseforge/courseforge-backend/pkg/logger"
	pkgredis "github.com/courseforge/courseforge-backend/pkg/redis"
	"github.com/courseforge/courseforge-backend/pkg/square"
)

// RedisStore is the redis surface the HTTP layer needs.
type RedisStore interface {
	pkgredis.IdempotencyStore
	pkgredis.RateLimiter
	pkgredis.Pinger
}

// Params carries every dependency the router mounts. Nil services answer 500
// on their routes; nil infrastructure disables the matching middleware.
type Params struct {
	Config *config.Config
	Logger *logger.Logger

	DB      controllers.Pinger
	Redis   RedisStore
	Storage controllers.Pinger
	Metrics http.Handler

	Enrollments   enrollments.Service
	Payments      payments.Service
	Vouchers      vouchers.Service
	Notifications notifications.Service
	Evidence      evidence.Service

	SquareWebhook *squarewebhook.Service
	SquareGuard   *squarewebhook.IdempotencyGuard
	SquareClient  *square.Client
}

func NewRouter(p Params) http.Handler {
	cfg, logg := p.Config, p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Recoverer(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	var (
		idempotencyStore pkgredis.IdempotencyStore
		limiter          pkgredis.RateLimiter
	)
	readiness := map[string]controllers.Pinger{}
	if p.DB != nil {
		readiness["db"] = p.DB
	}
	if p.Redis != nil {
		idempotencyStore = p.Redis
		limiter = p.Redis
		readiness["redis"] = p.Redis
	}
	if p.Storage != nil {
		readiness["storage"] = p.Storage
	}

	metricsHandler := p.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}

	voucherValidatePolicy := middleware.NewRateLimitPolicy(
		"voucher_validate",
		cfg.RateLimit.VoucherValidateWindow,
		cfg.RateLimit.VoucherValidateLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, readiness, logg))
	})
	r.Handle("/metrics", metricsHandler)

	// Square notifications are only accepted when card capture is configured.
	if p.SquareWebhook != nil && p.SquareClient != nil && p.SquareGuard != nil {
		r.Post("/webhooks/square", webhookcontrollers.SquareWebhook(p.SquareWebhook, p.SquareClient, p.SquareGuard, logg))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(enums.RoleStudent, logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Route("/enrollments", func(r chi.Router) {
			r.Post("/", enrollmentcontrollers.Request(p.Enrollments, logg))
			r.Get("/", enrollmentcontrollers.ListMine(p.Enrollments, logg))
			r.Get("/{enrollmentId}", enrollmentcontrollers.Detail(p.Enrollments, logg))
		})
		r.Get("/courses/{courseId}/access", enrollmentcontrollers.CourseAccess(p.Enrollments, logg))

		r.Route("/payments", func(r chi.Router) {
			r.Post("/", paymentcontrollers.Record(p.Payments, logg))
			r.Post("/card", paymentcontrollers.CaptureCard(p.Payments, logg))
			r.Post("/{paymentId}/reupload", paymentcontrollers.Reupload(p.Payments, logg))
			r.Get("/{paymentId}", paymentcontrollers.Detail(p.Payments, logg))
		})

		r.With(middleware.RateLimit(voucherValidatePolicy, limiter, logg)).
			Post("/vouchers/validate", vouchercontrollers.Validate(p.Vouchers, logg))

		r.Post("/evidence/presign", controllers.EvidencePresign(p.Evidence, logg))

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(p.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(p.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(p.Notifications, logg))
		})
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(enums.RoleAdmin, logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Route("/enrollments", func(r chi.Router) {
			r.Get("/", enrollmentcontrollers.AdminList(p.Enrollments, logg))
			r.Post("/{enrollmentId}/status", enrollmentcontrollers.AdminSetStatus(p.Enrollments, logg))
			r.Post("/{enrollmentId}/expiration", enrollmentcontrollers.AdminSetExpiration(p.Enrollments, logg))
			r.Post("/{enrollmentId}/voucher", enrollmentcontrollers.AdminApplyVoucher(p.Enrollments, logg))
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/{paymentId}/status", paymentcontrollers.AdminTransition(p.Payments, logg))
			r.Post("/{paymentId}/sync", paymentcontrollers.AdminSync(p.Payments, logg))
			r.Get("/{paymentId}/history", paymentcontrollers.AdminHistory(p.Payments, logg))
			r.Get("/{paymentId}/receipt", paymentcontrollers.AdminReceipt(p.Payments, p.Evidence, logg))
		})

		r.Route("/vouchers", func(r chi.Router) {
			r.Get("/", vouchercontrollers.AdminList(p.Vouchers, logg))
			r.Post("/", vouchercontrollers.AdminCreate(p.Vouchers, logg))
			r.Get("/{voucherId}", vouchercontrollers.AdminDetail(p.Vouchers, logg))
			r.Patch("/{voucherId}", vouchercontrollers.AdminUpdate(p.Vouchers, logg))
			r.Delete("/{voucherId}", vouchercontrollers.AdminDelete(p.Vouchers, logg))
			r.Post("/{voucherId}/deactivate", vouchercontrollers.AdminDeactivate(p.Vouchers, logg))
			r.Get("/{voucherId}/usages", vouchercontrollers.AdminUsages(p.Vouchers, logg))
		})
	})

	return r
}
