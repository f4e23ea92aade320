package routes

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Dosada05/league-reservations/handlers"
	"github.com/Dosada05/league-reservations/middleware"
	"github.com/Dosada05/league-reservations/rate"
)

type Config struct {
	JWTSecret    string
	EntryLimiter rate.Limiter
	Logger       *slog.Logger
}

type Handlers struct {
	Entries     *handlers.EntryHandler
	Webhooks    *handlers.WebhookHandler
	Admin       *handlers.AdminHandler
	Memberships *handlers.MembershipHandler
	WebSocket   *handlers.WebSocketHandler
}

func SetupRoutes(router *chi.Mux, cfg Config, h Handlers) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())

	// Запись на турнир — единственный маршрут под лимитером: его зовут
	// болельщики в момент открытия регистрации.
	router.Group(func(r chi.Router) {
		if cfg.EntryLimiter != nil {
			r.Use(middleware.RateLimit(cfg.EntryLimiter, cfg.Logger))
		}
		r.Post("/entries", h.Entries.Create)
	})

	// Шлюз аутентифицируется подписью тела, не токеном.
	router.Post("/webhooks/payment-events", h.Webhooks.HandleEvent)

	router.Route("/membership", func(r chi.Router) {
		r.Get("/status", h.Memberships.Status)
		r.Post("/subscribe", h.Memberships.Subscribe)
		r.Post("/billing-portal", h.Memberships.BillingPortal)
	})

	router.Get("/ws/tournaments/{tournamentID}", h.WebSocket.ServeWs)

	router.Post("/admin/login", h.Admin.Login)
	router.Route("/admin", func(r chi.Router) {
		r.Use(middleware.Authenticate(cfg.JWTSecret))
		r.Use(middleware.RequireAdmin)

		r.Post("/tournaments/{tournamentID}/promote-next", h.Admin.PromoteNext)
		r.Get("/halls/{hallID}/revenue-report", h.Admin.HallRevenue)
	})
}
