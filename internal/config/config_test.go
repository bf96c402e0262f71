package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kasse-pos/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.LoadForTests(map[string]string{
		"BACKEND_BASE_URL": "https://backend.example.com/api/",
		"HISTORY_STORE":    "",
		"CURRENCY_CODE":    "",
		"HISTORY_MAX_AGE":  "",
		"PORT":             "",
	})
	require.NoError(t, err)
	require.Equal(t, config.HistoryStoreMemory, cfg.HistoryStore)
	require.Equal(t, "EUR", cfg.CurrencyCode)
	require.Equal(t, 12*time.Hour, cfg.HistoryMaxAge)
	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.Equal(t, "30-M", cfg.VoucherRateLimit)
	require.True(t, cfg.Obs.MetricsEnabled)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := config.LoadForTests(map[string]string{
		"BACKEND_BASE_URL":       "http://localhost:9000",
		"HISTORY_STORE":          "redis",
		"REDIS_URL":              "redis://localhost:6379/0",
		"HISTORY_MAX_DEPTH":      "10",
		"CIRCUIT_FAILURE_RATIO":  "0.25",
		"CORS_ALLOWED_ORIGINS":   "https://till.example.com, https://admin.example.com",
		"OBS_METRICS_BUCKETS_MS": "100,abc,5",
		"OBS_METRICS_ENABLED":    "false",
	})
	require.NoError(t, err)
	require.Equal(t, config.HistoryStoreRedis, cfg.HistoryStore)
	require.Equal(t, 10, cfg.HistoryMaxDepth)
	require.Equal(t, 0.25, cfg.CircuitFailureRatio)
	require.Equal(t, []string{"https://till.example.com", "https://admin.example.com"}, cfg.CORSAllowedOrigins)
	require.Equal(t, []float64{100, 5}, cfg.Obs.MetricsBuckets)
	require.False(t, cfg.Obs.MetricsEnabled)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]map[string]string{
		"missing backend":  {"BACKEND_BASE_URL": ""},
		"relative backend": {"BACKEND_BASE_URL": "backend/api"},
		"redis store":      {"BACKEND_BASE_URL": "http://b", "HISTORY_STORE": "redis", "REDIS_URL": ""},
		"postgres store":   {"BACKEND_BASE_URL": "http://b", "HISTORY_STORE": "postgres", "DATABASE_URL": ""},
		"unknown store":    {"BACKEND_BASE_URL": "http://b", "HISTORY_STORE": "disk"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.LoadForTests(env)
			require.Error(t, err)
		})
	}
}
