package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestHandlerMiddlewareEnforcesLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	lim, err := New(client, "1-M", "ratelimit")
	require.NoError(t, err)
	counted := Handler{Limiter: lim, Key: func(*http.Request) string { return "static" }}.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/vouchers", nil)
	rr1 := httptest.NewRecorder()
	counted.ServeHTTP(rr1, req.Clone(req.Context()))
	require.Equal(t, http.StatusOK, rr1.Code)

	rr2 := httptest.NewRecorder()
	counted.ServeHTTP(rr2, req.Clone(req.Context()))
	require.Equal(t, http.StatusTooManyRequests, rr2.Code)
	require.Equal(t, "1", rr2.Header().Get("X-RateLimit-Limit"))
	require.NotEmpty(t, rr2.Header().Get("Retry-After"))
}

func TestHandlerMiddlewareMemoryStoreKeysByClientIP(t *testing.T) {
	lim, err := New(nil, "1-H", "ratelimit")
	require.NoError(t, err)
	counted := Handler{Limiter: lim}.Middleware(okHandler())

	send := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/deposits", nil)
		req.Header.Set("X-Forwarded-For", ip)
		rr := httptest.NewRecorder()
		counted.ServeHTTP(rr, req)
		return rr.Code
	}
	require.Equal(t, http.StatusOK, send("10.0.0.1"))
	require.Equal(t, http.StatusTooManyRequests, send("10.0.0.1"))
	require.Equal(t, http.StatusOK, send("10.0.0.2"))
}

func TestHandlerMiddlewareOnError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	lim, err := New(client, "1-S", "ratelimit")
	require.NoError(t, err)
	mr.Close()

	var got error
	counted := Handler{
		Limiter: lim,
		Key:     func(*http.Request) string { return "err" },
		OnError: func(err error) { got = err },
	}.Middleware(okHandler())

	rr := httptest.NewRecorder()
	counted.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/test", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Error(t, got)
}

func TestNewRejectsBadRate(t *testing.T) {
	_, err := New(nil, "lots", "x")
	require.Error(t, err)
}
