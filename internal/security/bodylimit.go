package security

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/noah-isme/kasse-pos/internal/common"
)

// BodyLimit caps request payloads. Register payloads are tiny so the default is small.
type BodyLimit struct {
	Max int64
}

const defaultBodyLimit = 64 << 10

// Middleware rejects oversize payloads with 413 PAYLOAD_TOO_LARGE and buffers the rest so handlers
// can decode and retry reads.
func (b BodyLimit) Middleware(next http.Handler) http.Handler {
	limit := b.Max
	if limit <= 0 {
		limit = defaultBodyLimit
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body == nil || r.Body == http.NoBody {
			next.ServeHTTP(w, r)
			return
		}
		if r.ContentLength > limit {
			tooLarge(w, limit)
			return
		}

		buf, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
		_ = r.Body.Close()
		if err != nil && !errors.Is(err, io.EOF) {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
			return
		}
		if int64(len(buf)) > limit {
			tooLarge(w, limit)
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(buf))
		r.ContentLength = int64(len(buf))
		next.ServeHTTP(w, r)
	})
}

func tooLarge(w http.ResponseWriter, limit int64) {
	common.JSONError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request entity too large", map[string]any{"limit": limit})
}
