package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/noah-isme/kasse-pos/internal/common"
)

// New builds a limiter for a formatted rate such as "30-M". Counters live in Redis when a client
// is given, otherwise in process memory.
func New(rdb *redis.Client, rate, prefix string) (*limiter.Limiter, error) {
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, err
	}
	var store limiter.Store
	if rdb != nil {
		store, err = limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: prefix})
		if err != nil {
			return nil, err
		}
	} else {
		store = memory.NewStoreWithOptions(limiter.StoreOptions{Prefix: prefix, CleanUpInterval: time.Minute})
	}
	return limiter.New(store, r), nil
}

// Handler enforces rate limits before delegating to the next handler.
type Handler struct {
	Limiter *limiter.Limiter
	Key     func(*http.Request) string
	OnError func(error)
}

// Middleware implements the http.Handler middleware interface. Store failures let the request through.
func (h Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		key := common.ClientIP(r)
		if h.Key != nil {
			key = h.Key(r)
		}
		lc, err := h.Limiter.Get(r.Context(), key)
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}

		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.FormatInt(lc.Limit, 10))
		headers.Set("X-RateLimit-Remaining", strconv.FormatInt(lc.Remaining, 10))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(lc.Reset, 10))

		if lc.Reached {
			retryAfter := int(time.Until(time.Unix(lc.Reset, 0)).Seconds())
			if retryAfter < 0 {
				retryAfter = 0
			}
			headers.Set("Retry-After", strconv.Itoa(retryAfter))
			common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}
