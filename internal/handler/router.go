package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"buddiesfinder/internal/util"
)

// HealthCheck is one dependency probed by /health.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type RouterConfig struct {
	AllowedOrigins  []string
	RequestTimeout  time.Duration
	LoginRateLimit  int
	LoginRateWindow time.Duration
	RequireTLS      bool
	HealthChecks    []HealthCheck
}

type Handlers struct {
	Auth       *AuthHandler
	Profile    *ProfileHandler
	Activities *ActivityHandler
	Posts      *PostHandler
	Admin      *AdminHandler
}

// NewRouter creates and configures the Chi router with all middleware and routes
func NewRouter(h Handlers, sessions *Sessions, cfg RouterConfig, logger *zap.Logger) chi.Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	router := chi.NewRouter()

	if cfg.RequireTLS {
		router.Use(requireHTTPS)
	}

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(LoggerMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(cfg.RequestTimeout))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/health", healthHandler(cfg.HealthChecks))
	router.Handle("/metrics", promhttp.Handler())

	loginLimit := func(next http.Handler) http.Handler { return next }
	if cfg.LoginRateLimit > 0 {
		loginLimit = httprate.Limit(cfg.LoginRateLimit, cfg.LoginRateWindow,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				newResponder(logger).respondWithJSON(w, http.StatusTooManyRequests,
					errorResponse("too many requests", "Too many login attempts, try again later"))
			}),
		)
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(RequestMetaMiddleware)
		r.Use(sessions.Middleware)

		h.Auth.RegisterRoutes(r, loginLimit)

		r.Group(func(r chi.Router) {
			r.Use(sessions.RequireAuth)
			h.Profile.RegisterRoutes(r)
			h.Activities.RegisterRoutes(r)
			h.Posts.RegisterRoutes(r)
			h.Admin.RegisterRoutes(r)
		})
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		newResponder(logger).respondWithJSON(w, http.StatusNotFound, errorResponse("endpoint not found", ""))
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		newResponder(logger).respondWithJSON(w, http.StatusMethodNotAllowed, errorResponse("method not allowed", ""))
	})

	return router
}

func healthHandler(checks []HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		components := make(map[string]string, len(checks))
		for _, c := range checks {
			if err := c.Check(ctx); err != nil {
				util.Warn("Health check failed", util.String("component", c.Name), util.ErrorField(err))
				components[c.Name] = "unhealthy"
				status = http.StatusServiceUnavailable
				continue
			}
			components[c.Name] = "healthy"
		}

		state := "healthy"
		if status != http.StatusOK {
			state = "degraded"
		}
		newResponder(util.Get()).respondWithJSON(w, status, Response{
			Success: status == http.StatusOK,
			Data:    map[string]any{"status": state, "service": "buddiesfinder", "components": components},
		})
	}
}
