package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/license-notifications/internal/application/notification"
	"github.com/license-notifications/internal/config"
	"github.com/license-notifications/internal/domain"
	jwtinfra "github.com/license-notifications/internal/infrastructure/jwt"
	"github.com/license-notifications/internal/transport/http/handler"
	appmiddleware "github.com/license-notifications/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	UserRepo         UserRepository
	NotificationRepo NotificationRepository
	TaskRepo         TaskRepository
	Dispatcher       TaskDispatcher
	JWTProvider      *jwtinfra.Provider
}

// NewRouter builds and returns the application router. ctx bounds the
// background work of the rate limiter.
func NewRouter(ctx context.Context, cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	if cfg.TrustProxyHeaders {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Location"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Every detail read is a write (counter +1), so it gets its own budget.
	detailRL := appmiddleware.NewRateLimiter(ctx, rate.Limit(cfg.DetailRateLimit), cfg.DetailRateBurst)

	notifSvc := notification.NewService(notification.ServiceDeps{
		UserRepo:         deps.UserRepo,
		NotificationRepo: deps.NotificationRepo,
		Dispatcher:       deps.Dispatcher,
		EagerReconcile:   cfg.EagerReconcile,
	})

	healthH := handler.NewHealthHandler()
	notifH := handler.NewNotificationHandler(notifSvc)
	taskH := handler.NewTaskHandler(deps.TaskRepo)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health-check/{action}", healthH.Ping)

		r.Group(func(r chi.Router) {
			r.Use(appmiddleware.Auth(deps.JWTProvider))

			r.Post("/licensees/{licenseeId}/notifications", notifH.Create)
			r.Get("/licensees/{licenseeId}/notifications", notifH.List)
			r.With(detailRL.Limit).Get("/notifications/{id}", notifH.Get)
			r.Post("/notifications/{id}", notifH.Update)

			r.Group(func(r chi.Router) {
				r.Use(appmiddleware.RequireRole(domain.RoleAdmin))
				r.Get("/tasks/{id}", taskH.Get)
			})
		})
	})

	return r
}
