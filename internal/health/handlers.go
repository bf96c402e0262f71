package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

var ready atomic.Bool

func init() { ready.Store(true) }

// SetReady toggles readiness. The server flips it to false when draining so load balancers stop
// routing new sales to this instance.
func SetReady(v bool) { ready.Store(v) }

// Probe checks one dependency. Optional dependencies that are not configured are simply not
// registered.
type Probe struct {
	Name    string
	Timeout time.Duration
	Ping    func(ctx context.Context) error
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Probes []Probe
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness based on dependency probes.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	status := make(map[string]string, len(h.Probes)+1)
	healthy := ready.Load()
	if !healthy {
		status["server"] = "shutting down"
	}
	for _, p := range h.Probes {
		if p.Ping == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeoutOrDefault(p.Timeout))
		err := p.Ping(ctx)
		cancel()
		if err != nil {
			status[p.Name] = err.Error()
			healthy = false
			continue
		}
		status[p.Name] = "ok"
	}
	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(status)
}

func timeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}
