package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/noah-isme/kasse-pos/internal/app"
	"github.com/noah-isme/kasse-pos/internal/common"
	"github.com/noah-isme/kasse-pos/internal/config"
	"github.com/noah-isme/kasse-pos/internal/health"
	"github.com/noah-isme/kasse-pos/internal/obs"
	"github.com/noah-isme/kasse-pos/internal/ratelimit"
	"github.com/noah-isme/kasse-pos/internal/register"
	"github.com/noah-isme/kasse-pos/internal/security"
)

func newRouter(cfg *config.Config, deps *app.Dependencies, logger zerolog.Logger, httpMetrics *obs.HTTPMetrics) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Obs.TracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(security.Headers{Enable: cfg.Obs.SecurityHeaders, EnableHSTS: cfg.Obs.HSTSEnabled}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)

	if httpMetrics != nil {
		r.Handle("/metrics", promhttp.Handler())
	}
	if cfg.Obs.PprofEnabled {
		profiler := middleware.Profiler()
		if cfg.Obs.PprofUser != "" {
			profiler = middleware.BasicAuth("pprof", map[string]string{cfg.Obs.PprofUser: cfg.Obs.PprofPassword})(profiler)
		}
		r.Mount("/debug", profiler)
	}

	healthHandler := health.Handler{Probes: readinessProbes(deps)}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	idem := common.Idem{TTL: cfg.IdempotencyTTL}
	if deps.Redis != nil {
		idem.R = deps.Redis
	}
	redeemLimit := ratelimit.Handler{
		Limiter: deps.RedeemLimiter,
		OnError: func(err error) { logger.Warn().Err(err).Msg("rate_limit_store_failed") },
	}

	r.Route("/api/v1", func(v chi.Router) {
		v.Get("/products/{id}", deps.CatalogHandler.Product)
		v.Route("/sessions", func(s chi.Router) {
			deps.SessionHandler.Mount(s, register.Middlewares{
				Checkout: []func(http.Handler) http.Handler{idem.Middleware},
				Redeem:   []func(http.Handler) http.Handler{redeemLimit.Middleware},
			})
		})
	})
	return r
}

func readinessProbes(deps *app.Dependencies) []health.Probe {
	probes := []health.Probe{{Name: "backend", Timeout: 2 * time.Second, Ping: deps.Backend.Ping}}
	if deps.Redis != nil {
		probes = append(probes, health.Probe{Name: "redis", Timeout: 300 * time.Millisecond, Ping: deps.PingRedis})
	}
	if deps.DB != nil {
		probes = append(probes, health.Probe{Name: "db", Timeout: 500 * time.Millisecond, Ping: deps.PingDB})
	}
	return probes
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}
