package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"

	"github.com/noah-isme/kasse-pos/internal/backend"
	"github.com/noah-isme/kasse-pos/internal/catalog"
	"github.com/noah-isme/kasse-pos/internal/config"
	"github.com/noah-isme/kasse-pos/internal/deposit"
	"github.com/noah-isme/kasse-pos/internal/history"
	"github.com/noah-isme/kasse-pos/internal/lock"
	"github.com/noah-isme/kasse-pos/internal/migrate"
	"github.com/noah-isme/kasse-pos/internal/money"
	"github.com/noah-isme/kasse-pos/internal/notify"
	"github.com/noah-isme/kasse-pos/internal/obs"
	"github.com/noah-isme/kasse-pos/internal/payment"
	"github.com/noah-isme/kasse-pos/internal/ratelimit"
	"github.com/noah-isme/kasse-pos/internal/register"
	"github.com/noah-isme/kasse-pos/internal/resilience"
	"github.com/noah-isme/kasse-pos/internal/voucher"
)

// Dependencies holds the wired services of the register API. Redis and Postgres are optional and
// nil when not configured.
type Dependencies struct {
	DB        *pgxpool.Pool
	Redis     *redis.Client
	Validator *validator.Validate

	Backend        *backend.Client
	Catalog        *catalog.Service
	Registry       *register.Registry
	Persister      *history.Persister
	HistoryStore   history.Store
	RedeemLimiter  *limiter.Limiter
	SessionHandler *register.Handler
	CatalogHandler *catalog.Handler
}

// Build connects the configured infrastructure and constructs every service.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Dependencies, error) {
	d := &Dependencies{Validator: validator.New(validator.WithRequiredStructEnabled())}

	if cfg.RedisURL != "" {
		rdb, err := NewRedis(ctx, cfg.RedisURL, cfg.Obs.MetricsEnabled)
		if err != nil {
			return nil, err
		}
		d.Redis = rdb
	}
	if cfg.DatabaseURL != "" {
		pool, err := NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.DB = pool
		if err := migrate.Apply(ctx, cfg.DatabaseURL); err != nil {
			d.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	store, err := d.historyStore(cfg)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.HistoryStore = store
	d.Persister = history.NewPersister(history.PersisterConfig{
		Store:  store,
		Logger: logger.With().Str("component", "history").Logger(),
	})

	breaker := resilience.NewBreaker(cfg.CircuitMinRequests, cfg.CircuitFailureRatio, cfg.CircuitOpenFor).
		WithTarget("backend").
		WithLogger(logger)
	d.Backend, err = backend.New(backend.Config{
		BaseURL:         cfg.BackendBaseURL,
		Token:           cfg.BackendToken,
		DepositCategory: cfg.DepositCategory,
		Timeout:         cfg.BackendTimeout,
		HTTP: resilience.HTTPClient{
			Client:      backend.NewHTTPClient(),
			Breaker:     breaker,
			BaseBackoff: cfg.RetryBase,
			MaxAttempts: cfg.RetryMaxAttempts,
			Jitter:      cfg.RetryJitter,
			Timeout:     cfg.BackendTimeout,
		},
		Logger: logger.With().Str("component", "backend").Logger(),
	})
	if err != nil {
		d.Close()
		return nil, err
	}

	var cache *catalog.Cache
	if d.Redis != nil {
		cache = catalog.NewCache(d.Redis, cfg.CatalogCacheTTL)
	}
	d.Catalog, err = catalog.NewService(catalog.ServiceConfig{Source: d.Backend, Cache: cache, Logger: logger})
	if err != nil {
		d.Close()
		return nil, err
	}

	formatter := money.NewFormatter(cfg.CurrencyLocale, cfg.CurrencyCode)
	notifier := notify.LogNotifier{Logger: logger.With().Str("component", "toast").Logger()}
	deps := register.Deps{
		Products:  d.Catalog,
		Vouchers:  &voucher.Service{Lookup: d.Backend},
		Deposits:  &deposit.Service{Lookup: d.Backend},
		Payments:  &payment.Service{Submitter: d.Backend, Notifier: notifier, Formatter: formatter, Logger: logger},
		LockTTL:   cfg.LockTTL,
		Notifier:  notifier,
		Formatter: formatter,
		Persister: d.Persister,
		MaxDepth:  cfg.HistoryMaxDepth,
		MaxAge:    cfg.HistoryMaxAge,
		Logger:    logger.With().Str("component", "register").Logger(),
	}
	if d.Redis != nil {
		deps.Locker = lock.Locker{R: d.Redis}
	}
	d.Registry = register.NewRegistry(deps, cfg.SessionIdleTTL)

	d.RedeemLimiter, err = ratelimit.New(d.Redis, cfg.VoucherRateLimit, "kasse:ratelimit:redeem")
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("redeem rate limit: %w", err)
	}

	d.SessionHandler = register.NewHandler(register.HandlerConfig{Registry: d.Registry, Validate: d.Validator})
	d.CatalogHandler = catalog.NewHandler(catalog.HandlerConfig{Service: d.Catalog})
	return d, nil
}

func (d *Dependencies) historyStore(cfg *config.Config) (history.Store, error) {
	switch cfg.HistoryStore {
	case config.HistoryStoreRedis:
		if d.Redis == nil {
			return nil, errors.New("history store redis requires REDIS_URL")
		}
		return history.NewRedisStore(d.Redis, cfg.HistoryMaxAge), nil
	case config.HistoryStorePostgres:
		if d.DB == nil {
			return nil, errors.New("history store postgres requires DATABASE_URL")
		}
		return history.NewPostgresStore(d.DB), nil
	default:
		return history.NewMemoryStore(), nil
	}
}

// RunBackground starts the session sweeper and, for Postgres history, the stale row purge. It
// returns when ctx is done.
func (d *Dependencies) RunBackground(ctx context.Context, cfg *config.Config, logger zerolog.Logger) {
	go d.Registry.Run(ctx, time.Minute)

	pg, ok := d.HistoryStore.(*history.PostgresStore)
	if !ok || cfg.HistoryMaxAge <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := pg.PurgeOlderThan(ctx, time.Now().Add(-cfg.HistoryMaxAge))
			if err != nil {
				logger.Warn().Err(err).Msg("history_purge_failed")
				continue
			}
			if n > 0 {
				logger.Info().Int64("rows", n).Msg("history_purged")
			}
		}
	}
}

// PingRedis probes Redis for readiness checks.
func (d *Dependencies) PingRedis(ctx context.Context) error { return d.Redis.Ping(ctx).Err() }

// PingDB probes the Postgres pool.
func (d *Dependencies) PingDB(ctx context.Context) error { return d.DB.Ping(ctx) }

// Close flushes pending history writes and releases connections.
func (d *Dependencies) Close() {
	if d.Persister != nil {
		d.Persister.Close()
	}
	if d.DB != nil {
		d.DB.Close()
	}
	if d.Redis != nil {
		_ = d.Redis.Close()
	}
}

// NewRedis parses url, instruments the client with tracing (and metrics when asked) and checks
// connectivity.
func NewRedis(ctx context.Context, url string, withMetrics bool) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := redisotel.InstrumentTracing(rdb); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("instrument redis: %w", err)
	}
	if withMetrics {
		if err := redisotel.InstrumentMetrics(rdb); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("instrument redis metrics: %w", err)
		}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// NewPostgres opens a pgx pool that traces every query.
func NewPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pcfg.ConnConfig.Tracer = obs.PGXTracer{}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}
