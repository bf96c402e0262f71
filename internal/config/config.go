package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// History store backends selectable through HISTORY_STORE.
const (
	HistoryStoreMemory   = "memory"
	HistoryStoreRedis    = "redis"
	HistoryStorePostgres = "postgres"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv string
	Port   string

	BackendBaseURL  string
	BackendToken    string
	BackendTimeout  time.Duration
	DepositCategory string

	RedisURL    string
	DatabaseURL string

	HistoryStore    string
	HistoryMaxDepth int
	HistoryMaxAge   time.Duration

	CatalogCacheTTL time.Duration
	CurrencyCode    string
	CurrencyLocale  string

	CORSAllowedOrigins []string
	VoucherRateLimit   string
	BodyLimitBytes     int64

	CircuitMinRequests  int
	CircuitFailureRatio float64
	CircuitOpenFor      time.Duration
	RetryMaxAttempts    int
	RetryBase           time.Duration
	RetryJitter         float64

	LockTTL        time.Duration
	SessionIdleTTL time.Duration
	IdempotencyTTL time.Duration

	Obs Observability
}

// Observability groups the OBS_* settings.
type Observability struct {
	LogFormat        string
	LogLevel         string
	MetricsEnabled   bool
	MetricsBuckets   []float64
	TracingEnabled   bool
	TracingExporter  string
	TracingEndpoint  string
	TracingSampling  float64
	PprofEnabled     bool
	PprofUser        string
	PprofPassword    string
	SecurityHeaders  bool
	HSTSEnabled      bool
	ShutdownGraceful time.Duration
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv: valueOrDefault(k.String("APP_ENV"), "development"),
		Port:   valueOrDefault(k.String("PORT"), "8080"),

		BackendBaseURL:  strings.TrimSpace(k.String("BACKEND_BASE_URL")),
		BackendToken:    strings.TrimSpace(k.String("BACKEND_API_TOKEN")),
		BackendTimeout:  parseDuration(k.String("BACKEND_TIMEOUT"), "5s"),
		DepositCategory: valueOrDefault(k.String("DEPOSIT_CATEGORY"), "Pfand"),

		RedisURL:    strings.TrimSpace(k.String("REDIS_URL")),
		DatabaseURL: strings.TrimSpace(k.String("DATABASE_URL")),

		HistoryStore:    strings.ToLower(valueOrDefault(k.String("HISTORY_STORE"), HistoryStoreMemory)),
		HistoryMaxDepth: parseInt(k.String("HISTORY_MAX_DEPTH"), 50),
		HistoryMaxAge:   parseDuration(k.String("HISTORY_MAX_AGE"), "12h"),

		CatalogCacheTTL: parseDuration(k.String("CATALOG_CACHE_TTL"), "2m"),
		CurrencyCode:    strings.ToUpper(valueOrDefault(k.String("CURRENCY_CODE"), "EUR")),
		CurrencyLocale:  valueOrDefault(k.String("CURRENCY_LOCALE"), "de-DE"),

		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		VoucherRateLimit:   valueOrDefault(k.String("VOUCHER_RATE_LIMIT"), "30-M"),
		BodyLimitBytes:     int64(parseInt(k.String("BODY_LIMIT_BYTES"), 64<<10)),

		CircuitMinRequests:  parseInt(k.String("CIRCUIT_MIN_REQUESTS"), 5),
		CircuitFailureRatio: parseFloat(k.String("CIRCUIT_FAILURE_RATIO"), 0.5),
		CircuitOpenFor:      parseDuration(k.String("CIRCUIT_OPEN_FOR"), "30s"),
		RetryMaxAttempts:    parseInt(k.String("RETRY_MAX_ATTEMPTS"), 3),
		RetryBase:           parseDuration(k.String("RETRY_BASE"), "100ms"),
		RetryJitter:         parseFloat(k.String("RETRY_JITTER"), 0.2),

		LockTTL:        parseDuration(k.String("LOCK_TTL"), "30s"),
		SessionIdleTTL: parseDuration(k.String("SESSION_IDLE_TTL"), "2h"),
		IdempotencyTTL: parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),

		Obs: Observability{
			LogFormat:        valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
			LogLevel:         valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
			MetricsEnabled:   parseBoolDefault(k.String("OBS_METRICS_ENABLED"), true),
			MetricsBuckets:   parseBuckets(k.String("OBS_METRICS_BUCKETS_MS")),
			TracingEnabled:   parseBool(k.String("OBS_TRACING_ENABLED")),
			TracingExporter:  valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
			TracingEndpoint:  strings.TrimSpace(k.String("OBS_TRACING_ENDPOINT")),
			TracingSampling:  parseFloat(k.String("OBS_TRACING_SAMPLER_RATIO"), 1),
			PprofEnabled:     parseBool(k.String("OBS_PPROF_ENABLED")),
			PprofUser:        k.String("OBS_PPROF_USER"),
			PprofPassword:    k.String("OBS_PPROF_PASSWORD"),
			SecurityHeaders:  parseBoolDefault(k.String("OBS_SECURITY_HEADERS"), true),
			HSTSEnabled:      parseBool(k.String("OBS_HSTS_ENABLED")),
			ShutdownGraceful: parseDuration(k.String("OBS_SHUTDOWN_GRACE"), "15s"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.BackendBaseURL == "" {
		return errors.New("BACKEND_BASE_URL is required")
	}
	u, err := url.Parse(c.BackendBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("BACKEND_BASE_URL must be an absolute url: %q", c.BackendBaseURL)
	}
	switch c.HistoryStore {
	case HistoryStoreMemory:
	case HistoryStoreRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required when HISTORY_STORE=redis")
		}
	case HistoryStorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when HISTORY_STORE=postgres")
		}
	default:
		return fmt.Errorf("unsupported HISTORY_STORE %q", c.HistoryStore)
	}
	if len(c.CurrencyCode) != 3 {
		return fmt.Errorf("CURRENCY_CODE must be an ISO 4217 code: %q", c.CurrencyCode)
	}
	return nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// IsProduction reports whether APP_ENV names a production deployment.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production") || strings.EqualFold(c.AppEnv, "prod")
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || f <= 0 {
		return fallback
	}
	return f
}

func parseBool(value string) bool {
	return parseBoolDefault(value, false)
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// parseBuckets reads a comma-separated list of latency bucket bounds in milliseconds.
func parseBuckets(csv string) []float64 {
	var out []float64
	for _, part := range splitAndTrim(csv) {
		v, err := strconv.ParseFloat(part, 64)
		if err != nil || v <= 0 {
			continue
		}
		out = append(out, v)
	}
	return out
}

// MustLoad behaves like Load but panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []error
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %w", errors.Join(errs...))
	}
	return nil
}
