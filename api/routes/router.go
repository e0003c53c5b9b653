package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/splitpay-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/splitpay-backend/api/controllers/webhooks"
	"github.com/angelmondragon/splitpay-backend/api/middleware"
	"github.com/angelmondragon/splitpay-backend/internal/items"
	"github.com/angelmondragon/splitpay-backend/internal/ledger"
	"github.com/angelmondragon/splitpay-backend/internal/payments"
	"github.com/angelmondragon/splitpay-backend/internal/realtime"
	"github.com/angelmondragon/splitpay-backend/internal/sessions"
	"github.com/angelmondragon/splitpay-backend/pkg/config"
	"github.com/angelmondragon/splitpay-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/splitpay-backend/pkg/redis"
)

// Store backs idempotent replays and the join-code rate limit.
type Store interface {
	pkgredis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

type tableServer interface {
	ServeTable(w http.ResponseWriter, r *http.Request, tableID string, who realtime.Participant)
}

// Deps carries everything the HTTP surface is wired to.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       controllers.Pinger
	Redis    controllers.Pinger
	Store    Store
	Gatherer prometheus.Gatherer

	Hub      tableServer
	Sessions sessions.Service
	Items    items.Service
	Ledger   ledger.Service
	Payments payments.Service
}

func NewRouter(d Deps) http.Handler {
	cfg, logg := d.Config, d.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.AllowedOrigins()),
	)

	joinPolicy := middleware.NewRateLimitPolicy(
		"join_code",
		cfg.RateLimit.JoinCodeWindow,
		cfg.RateLimit.JoinCodeLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"database": d.DB,
			"redis":    d.Redis,
		}))
	})

	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Get("/ws/tables/{tableID}", controllers.TableSocket(d.Hub, logg))

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(d.Payments, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Idempotency(d.Store, logg))

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", controllers.CreateSession(d.Sessions, logg))
			r.With(middleware.RateLimit(joinPolicy, d.Store, logg)).Get("/", controllers.GetSessionByCode(d.Sessions, logg))
			r.Get("/{sessionID}", controllers.GetSession(d.Sessions, logg))
			r.Post("/{sessionID}/close", controllers.CloseSession(d.Sessions, logg))
			r.Get("/{sessionID}/totals", controllers.SessionTotals(d.Ledger, logg))
			r.Get("/{sessionID}/guests/{guestID}/total", controllers.GuestTotal(d.Ledger, logg))
		})

		r.Route("/items", func(r chi.Router) {
			r.Post("/", controllers.CreateItem(d.Items, logg))
			r.Get("/", controllers.ListItems(d.Items, logg))
		})

		r.Route("/assignments", func(r chi.Router) {
			r.Post("/", controllers.CreateAssignment(d.Ledger, logg))
			r.Get("/", controllers.ListAssignments(d.Ledger, logg))
			r.Post("/{assignmentID}/reassign", controllers.ReassignAssignment(d.Ledger, logg))
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/intent", controllers.CreatePaymentIntent(d.Payments, logg))
			r.Get("/{paymentID}", controllers.GetPayment(d.Payments, logg))
		})
	})

	return r
}
