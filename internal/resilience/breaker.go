package resilience

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned when the circuit breaker refuses a request.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State represents the current breaker state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

var stateNames = [...]string{Closed: "closed", Open: "open", HalfOpen: "half_open"}

func (s State) String() string {
	if s < Closed || s > HalfOpen {
		return "unknown"
	}
	return stateNames[s]
}

// Breaker guards the commerce backend. It opens once the failure ratio over the most recent
// outcomes reaches the threshold, rejects calls for a cool-off period, then admits a single probe.
type Breaker struct {
	mu sync.Mutex

	state    State
	window   []bool // ring of recent outcomes, true = failure
	next     int
	filled   int
	failed   int
	openedAt time.Time
	probing  bool

	minRequests  int
	failureRatio float64
	openFor      time.Duration

	target string
	logger zerolog.Logger
	now    func() time.Time
}

// NewBreaker constructs a breaker that opens when the failure ratio reaches failureRatio
// after at least minRequests outcomes were observed. The ratio is computed over the last
// 2*minRequests outcomes, and at least the last ten.
func NewBreaker(minRequests int, failureRatio float64, openFor time.Duration) *Breaker {
	minRequests = max(minRequests, 1)
	if failureRatio <= 0 {
		failureRatio = 0.5
	}
	failureRatio = min(failureRatio, 1)
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	return &Breaker{
		window:       make([]bool, max(2*minRequests, 10)),
		minRequests:  minRequests,
		failureRatio: failureRatio,
		openFor:      openFor,
		logger:       zerolog.Nop(),
		now:          time.Now,
	}
}

// WithTarget sets the dependency label used for metrics and logs.
func (b *Breaker) WithTarget(target string) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.target = strings.TrimSpace(target)
	b.publishState()
	return b
}

// WithLogger configures the logger used for transition events.
func (b *Breaker) WithLogger(logger zerolog.Logger) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = logger
	return b
}

// WithClock replaces the time source.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	if now != nil {
		b.now = now
	}
	return b
}

// Allow reports whether a request may proceed.
func (b *Breaker) Allow(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if b.now().Sub(b.openedAt) < b.openFor {
			return false
		}
		b.transition(ctx, HalfOpen)
	}
	if b.probing {
		return false
	}
	b.probing = true
	return true
}

// Report records the outcome of an admitted request.
func (b *Breaker) Report(ctx context.Context, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		return
	case HalfOpen:
		b.probing = false
		if success {
			b.transition(ctx, Closed)
		} else {
			b.transition(ctx, Open)
		}
		return
	}

	if b.filled == len(b.window) && b.window[b.next] {
		b.failed--
	}
	b.window[b.next] = !success
	if !success {
		b.failed++
	}
	b.next = (b.next + 1) % len(b.window)
	b.filled = min(b.filled+1, len(b.window))

	if b.filled >= b.minRequests && float64(b.failed)/float64(b.filled) >= b.failureRatio {
		b.transition(ctx, Open)
	}
}

// State returns the current state without changing it.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Target returns the dependency label used for telemetry.
func (b *Breaker) Target() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.label()
}

func (b *Breaker) transition(ctx context.Context, to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.probing = false
	if to == Open {
		b.openedAt = b.now()
	}
	clear(b.window)
	b.next, b.filled, b.failed = 0, 0, 0

	label := b.label()
	b.publishState()
	BreakerTransitions.WithLabelValues(label, from.String(), to.String()).Inc()
	evt := b.logger.Info()
	if to == Open {
		BreakerOpenedTotal.WithLabelValues(label).Inc()
		evt = b.logger.Warn()
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		evt = evt.Str("trace_id", sc.TraceID().String())
	}
	evt.Str("target", label).Str("from_state", from.String()).Str("to_state", to.String()).Msg("breaker_transition")
}

func (b *Breaker) publishState() {
	BreakerState.WithLabelValues(b.label()).Set(float64(b.state))
}

func (b *Breaker) label() string {
	if b.target == "" {
		return "default"
	}
	return b.target
}
