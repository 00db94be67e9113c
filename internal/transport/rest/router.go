package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/heartmarshall/firstsignal-backend/internal/transport/middleware"
)

// RouterDeps collects everything the HTTP surface serves. Webhook is nil
// when Telegram updates are long-polled.
type RouterDeps struct {
	Signals     *SignalHandler
	Admin       *AdminHandler
	Health      *HealthHandler
	Webhook     *WebhookHandler
	Metrics     http.Handler
	AdminToken  string
	RateLimiter *middleware.RateLimiter
	Middlewares []middleware.Middleware
}

// NewRouter builds the chi router. Middlewares apply to every route; the rate
// limiter only guards public signal endpoints.
func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(d.Middlewares...)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/live", d.Health.Live)
	r.Get("/ready", d.Health.Ready)
	r.Get("/health", d.Health.Health)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	r.Group(func(r chi.Router) {
		if d.RateLimiter != nil {
			r.Use(d.RateLimiter.Limit())
		}
		r.Post("/signals", d.Signals.Submit)
		r.Get("/signals/{id}", d.Signals.Get)
		r.Get("/cooldowns/{senderKey}", d.Signals.Cooldown)
	})

	if d.Webhook != nil {
		r.Post("/telegram/webhook", d.Webhook.Receive)
	}

	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.AdminToken(d.AdminToken))
		r.Get("/signals", d.Admin.List)
		r.Get("/signals/stats", d.Admin.Stats)
	})

	return r
}
