package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/giftshop/cartsync/api/controllers"
	cartcontrollers "github.com/giftshop/cartsync/api/controllers/cart"
	"github.com/giftshop/cartsync/api/middleware"
	"github.com/giftshop/cartsync/internal/cart"
	"github.com/giftshop/cartsync/pkg/auth/session"
	"github.com/giftshop/cartsync/pkg/config"
	"github.com/giftshop/cartsync/pkg/db"
	"github.com/giftshop/cartsync/pkg/logger"
	"github.com/giftshop/cartsync/pkg/redis"
)

// NewRouter wires the HTTP surface. redisClient, sessions and gatherer are optional;
// without redis the idempotency and rate-limit layers pass requests through.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	sessions *session.Manager,
	cartService cart.Service,
	gatherer prometheus.Gatherer,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	// Typed nils must not leak into the middleware interfaces.
	var (
		idempotencyStore redis.IdempotencyStore
		limiterStore     redis.RateLimiter
		redisPinger      controllers.Pinger
		sessionChecker   session.AccessSessionChecker
	)
	if redisClient != nil {
		idempotencyStore = redisClient
		limiterStore = redisClient
		redisPinger = redisClient
	}
	if sessions != nil && cfg.FeatureFlags.SessionCheck {
		sessionChecker = sessions
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg,
			controllers.Dependency{Name: "database", Pinger: dbP},
			controllers.Dependency{Name: "redis", Pinger: redisPinger},
		))
	})

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	cartPolicy := middleware.NewRateLimitPolicy("cart", cfg.RateLimit.CartWindow, cfg.RateLimit.CartLimit)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/dev-token", devTokenHandler(cfg, sessions, logg))
			r.With(middleware.Auth(cfg.JWT, sessionChecker, logg)).Post("/logout", logoutHandler(sessions, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, sessionChecker, logg))
			r.Use(middleware.Idempotency(idempotencyStore, logg))
			r.Use(middleware.RateLimit(cartPolicy, limiterStore, logg))

			r.Get("/ping", controllers.PrivatePing())

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cartcontrollers.CartFetch(cartService, logg))
				r.Get("/count", cartcontrollers.CartCount(cartService, logg))
				r.Post("/add", cartcontrollers.CartAdd(cartService, logg))
				r.Put("/update/{productId}", cartcontrollers.CartUpdate(cartService, logg))
				r.Delete("/remove/{productId}", cartcontrollers.CartRemove(cartService, logg))
				r.Delete("/clear", cartcontrollers.CartClear(cartService, logg))
				r.Post("/merge", cartcontrollers.CartMerge(cartService, logg))
			})
		})
	})

	return r
}

func devTokenHandler(cfg *config.Config, sessions *session.Manager, logg *logger.Logger) http.HandlerFunc {
	if sessions == nil {
		return controllers.AuthDevToken(cfg, nil, logg)
	}
	return controllers.AuthDevToken(cfg, sessions, logg)
}

func logoutHandler(sessions *session.Manager, logg *logger.Logger) http.HandlerFunc {
	if sessions == nil {
		return controllers.AuthLogout(nil, logg)
	}
	return controllers.AuthLogout(sessions, logg)
}
