package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/freshora-backend/api/controllers"
	ordercontrollers "github.com/angelmondragon/freshora-backend/api/controllers/orders"
	webhookcontrollers "github.com/angelmondragon/freshora-backend/api/controllers/webhooks"
	"github.com/angelmondragon/freshora-backend/api/middleware"
	checkoutsvc "github.com/angelmondragon/freshora-backend/internal/checkout"
	"github.com/angelmondragon/freshora-backend/internal/orders"
	"github.com/angelmondragon/freshora-backend/pkg/config"
	"github.com/angelmondragon/freshora-backend/pkg/enums"
	"github.com/angelmondragon/freshora-backend/pkg/logger"
	"github.com/angelmondragon/freshora-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/freshora-backend/pkg/redis"
)

type RouterParams struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          controllers.Pinger
	Redis       controllers.Pinger
	Idempotency pkgredis.IdempotencyStore
	Checkout    checkoutsvc.Service
	Orders      orders.Service
	Reconciler  webhookcontrollers.StripeEventHandler
	Gatherer    prometheus.Gatherer
	HTTPMetrics *metrics.HTTPMetrics
}

func NewRouter(p RouterParams) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Logging(logg, p.HTTPMetrics),
		middleware.Recoverer(logg),
		middleware.CORS(cfg.Storefront.AllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    p.DB,
			"redis": p.Redis,
		}))
	})

	if p.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(p.Reconciler, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/checkout", func(r chi.Router) {
			r.Use(middleware.Idempotency(p.Idempotency, logg))
			r.Post("/cod", controllers.CheckoutCOD(p.Checkout, logg))
			r.Post("/card", controllers.CheckoutCard(p.Checkout, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/mine", ordercontrollers.Mine(p.Orders, logg))
			r.With(middleware.RequireRole(enums.RoleSeller, logg)).Get("/all", ordercontrollers.All(p.Orders, logg))
		})
	})

	return r
}
