package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"github.com/gke-notify/internal/config"
	"github.com/gke-notify/internal/transport/http/handler"
	appmiddleware "github.com/gke-notify/internal/transport/http/middleware"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(appmiddleware.RequestLogger(deps.Logger))
	r.Use(chimiddleware.Recoverer)

	// Push deliveries come from Pub/Sub; 0 disables the limit.
	pushRL := func(next http.Handler) http.Handler { return next }
	if cfg.PushRateLimit > 0 {
		pushRL = appmiddleware.NewRateLimiter(rate.Limit(cfg.PushRateLimit), cfg.PushRateBurst).Limit
	}

	previewCORS := cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	})

	healthH := handler.NewHealthHandler()
	pushH := handler.NewPushHandler(deps.Notifications, deps.Logger)

	r.Get("/health", healthH.Health)
	r.With(pushRL).Post("/", pushH.Push)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health-check/{action}", healthH.Ping)
		r.With(pushRL).Post("/push", pushH.Push)
		r.Group(func(r chi.Router) {
			r.Use(previewCORS)
			r.Options("/preview", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
			r.Post("/preview", pushH.Preview)
		})
	})

	return r
}
