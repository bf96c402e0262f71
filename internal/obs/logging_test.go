package obs

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func TestRequestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "json", "debug")

	r := chi.NewRouter()
	r.Use(RequestLogger{Logger: logger}.Middleware)
	r.Post("/api/v1/sessions/{sessionID}/checkout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/s-1/checkout", nil)
	req.Header.Set("Idempotency-Key", "sale-1")
	req.Header.Set("X-Forwarded-For", "10.0.0.7")
	r.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "http_request", entry["message"])
	require.Equal(t, "error", entry["level"])
	require.Equal(t, "/api/v1/sessions/{sessionID}/checkout", entry["route"])
	require.Equal(t, "s-1", entry["session_id"])
	require.Equal(t, "sale-1", entry["idempotency_key"])
	require.Equal(t, "10.0.0.7", entry["client_ip"])
	require.EqualValues(t, 502, entry["status"])
}
