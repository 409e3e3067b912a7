// Package httpapi wires the HTTP routes of the API server.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"pagepress/internal/auth"
	"pagepress/internal/config"
	"pagepress/internal/httpapi/handlers"
	"pagepress/internal/httpkit"
	"pagepress/internal/pkg/logger"
	"pagepress/internal/pkg/middleware"
)

type Deps struct {
	HTTP      config.HTTPConfig
	RateLimit config.RateLimitConfig
	Handlers  *handlers.Handler
	Auth      *auth.Handler
	Gate      *auth.Gate
	// Metrics serves /metrics when set.
	Metrics http.Handler
	Log     *logger.Logger
}

func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(log))
	r.Use(middleware.Recovery(log))
	r.Use(httpkit.CORS(httpkit.CORSOptions{
		AllowedOrigins:   d.HTTP.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-ID"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAgeSeconds:    600,
	}))

	h := d.Handlers
	wrap := func(fn middleware.ErrorHandlerFunc) http.HandlerFunc {
		return middleware.WrapHandler(log, fn)
	}

	// ---- HEALTH ----
	r.Get("/health", h.Health)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	// ---- AUTH ----
	r.Route("/auth", func(r chi.Router) {
		r.Get("/signin", wrap(d.Auth.SignIn))
		r.Get("/callback", wrap(d.Auth.Callback))
		r.Group(func(r chi.Router) {
			r.Use(d.Gate.Require)
			r.Post("/signout", wrap(d.Auth.SignOut))
			r.Get("/session", wrap(d.Auth.Session))
		})
	})

	// ---- RENDERS ----
	r.Route("/api", func(r chi.Router) {
		r.Use(d.Gate.Require)

		r.With(renderLimit(d.RateLimit)).Post("/renders", h.PostRender)
		r.Get("/renders", wrap(h.ListRenders))
		r.Get("/renders/export.xlsx", wrap(h.ExportRenders))
		r.Get("/renders/{renderId}/content", wrap(h.GetRenderContent))
	})

	return r
}

// renderLimit throttles render requests per principal.
func renderLimit(cfg config.RateLimitConfig) func(http.Handler) http.Handler {
	if !cfg.Enabled || cfg.RequestsPerMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return middleware.RateLimit(middleware.RateLimitConfig{
		Every: time.Minute / time.Duration(cfg.RequestsPerMinute),
		Burst: max(cfg.Burst, 1),
		Key: func(r *http.Request) string {
			user, err := auth.CurrentPrincipal(r)
			if err != nil {
				return ""
			}
			return user.ID
		},
	})
}
