package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/noah-isme/kasse-pos/internal/app"
	"github.com/noah-isme/kasse-pos/internal/config"
	"github.com/noah-isme/kasse-pos/internal/health"
	"github.com/noah-isme/kasse-pos/internal/obs"
	"github.com/noah-isme/kasse-pos/internal/resilience"
)

const metricsNamespace = "kasse"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	var httpMetrics *obs.HTTPMetrics
	if cfg.Obs.MetricsEnabled {
		obs.MustRegisterDomainMetrics(metricsNamespace, nil)
		if err := resilience.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
			logger.Fatal().Err(err).Msg("register breaker metrics")
		}
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, cfg.Obs.MetricsBuckets, nil)
	}

	exporter := cfg.Obs.TracingExporter
	if !cfg.Obs.TracingEnabled {
		exporter = "none"
	}
	shutdownTracer, err := obs.InitTracer(context.Background(), obs.TracingConfig{
		ServiceName:   "kasse-pos",
		Endpoint:      cfg.Obs.TracingEndpoint,
		Exporter:      exporter,
		SamplingRatio: cfg.Obs.TracingSampling,
		Environment:   cfg.AppEnv,
	})
	if err != nil {
		logger.Error().Err(err).Msg("initialise tracing")
		shutdownTracer = func(context.Context) error { return nil }
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error().Err(err).Msg("shutdown tracer")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	deps, err := app.Build(startCtx, cfg, logger)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise dependencies")
	}
	defer deps.Close()

	go deps.RunBackground(ctx, cfg, logger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           newRouter(cfg, deps, logger, httpMetrics),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("history_store", deps.HistoryStore.Name()).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	case <-ctx.Done():
	}

	health.SetReady(false)
	logger.Info().Dur("grace", cfg.Obs.ShutdownGraceful).Msg("server draining")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Obs.ShutdownGraceful)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown")
	}
	logger.Info().Msg("server stopped")
}
