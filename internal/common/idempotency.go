package common

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	redis "github.com/redis/go-redis/v9"
)

// Idem provides an Idempotency-Key middleware backed by Redis.
type Idem struct {
	R   redis.UniversalClient
	TTL time.Duration
}

type idempotencyKeyCtx struct{}

// WithIdempotencyKey stores the client supplied Idempotency-Key on the context.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKeyCtx{}, strings.TrimSpace(key))
}

// IdempotencyKey returns the key stored by WithIdempotencyKey, if any.
func IdempotencyKey(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(idempotencyKeyCtx{}).(string); ok {
		return v
	}
	return ""
}

func hashKey(r *http.Request, key string) string {
	sum := sha256.Sum256([]byte(r.Method + " " + r.URL.Path + " " + key))
	return "idem:" + hex.EncodeToString(sum[:])
}

func (i Idem) ttl() time.Duration {
	if i.TTL <= 0 {
		return 24 * time.Hour
	}
	return i.TTL
}

// Middleware rejects replays of a write request carrying an already seen Idempotency-Key.
// The key is scoped to method and path and forwarded on the request context. Keys of requests that
// ended in an error status are released.
func (i Idem) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		r = r.WithContext(WithIdempotencyKey(r.Context(), header))
		if i.R == nil {
			next.ServeHTTP(w, r)
			return
		}
		ctx := r.Context()
		key := hashKey(r, header)
		ok, err := i.R.SetNX(ctx, key, "locked", i.ttl()).Result()
		if err != nil {
			JSONError(w, http.StatusInternalServerError, "INTERNAL", "idempotency store error", map[string]any{"error": err.Error()})
			return
		}
		if !ok {
			JSONError(w, http.StatusConflict, "IDEMPOTENT_REPLAY", "duplicate request", nil)
			return
		}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		// a rejected or failed request may be retried with the same key
		if ww.Status() >= http.StatusBadRequest {
			_ = i.R.Del(context.WithoutCancel(ctx), key).Err()
		}
	})
}
