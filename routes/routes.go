package routes

import (
	"net/http"
	"time"

	"github.com/digitechhorizons/portal/app"
	"github.com/digitechhorizons/portal/handlers"
	portalmw "github.com/digitechhorizons/portal/middleware"
	"github.com/digitechhorizons/portal/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(portalmw.RequestLogger(deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Ops endpoints carry no visitor
	r.Get("/healthz", deps.Health.HandleHealth)
	r.Get("/readyz", deps.Health.HandleReadiness)
	if deps.Config.Observability.MetricsEnabled {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(deps.VisitorMiddleware.Attach)

		for _, page := range handlers.PublicPages {
			r.Get(page.Path, deps.Pages.Public(page))
		}
		for _, page := range handlers.GuardedPages {
			r.With(deps.Guard.Require(page.Role)).Get(page.Path, deps.Pages.Guarded(page))
		}

		r.Route("/api/v1", func(r chi.Router) {
			r.Route("/auth", func(r chi.Router) {
				r.Get("/session", deps.Auth.HandleSession)
				r.Post("/sign-in", deps.Auth.HandleSignIn)
				r.Post("/sign-up", deps.Auth.HandleSignUp)
				r.Post("/sign-out", handlers.AuthSignOutHandler(deps))
				r.Post("/resend-confirmation", deps.Auth.HandleResendConfirmation)
				r.Post("/password/reset-request", deps.Auth.HandleResetRequest)
				r.Post("/password/reset", deps.Auth.HandleResetPassword)
				r.Post("/callback", handlers.AuthCallbackHandler(deps))
				r.Post("/forms/{form}/edit", deps.Auth.HandleFormEdit)
			})

			r.Get("/navigate", deps.Navigation.HandleNavigate)

			r.Route("/dashboard", func(r chi.Router) {
				r.With(deps.Guard.RequireAPI(models.RoleAdmin)).Get("/admin", deps.Dashboards.HandleAdmin)
				r.With(deps.Guard.RequireAPI(models.RoleUser)).Get("/user", deps.Dashboards.HandleUser)
			})

			r.Post("/contact", deps.ContactForm.HandleSubmit)
			r.Post("/pixel/events", deps.PixelEvents.HandleEvent)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"endpoint not found"}`))
	})

	return r
}
