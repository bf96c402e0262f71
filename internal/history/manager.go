package history

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/kasse-pos/internal/cart"
	"github.com/noah-isme/kasse-pos/internal/voucher"
)

// DefaultMaxDepth bounds the undo stack when no depth is configured.
const DefaultMaxDepth = 50

// Config configures a Manager.
type Config struct {
	Key       string
	MaxDepth  int
	MaxAge    time.Duration
	Persister *Persister
	Logger    zerolog.Logger
	Now       func() time.Time
}

// Manager keeps the undo/redo stacks of one register session.
//
// The in-memory stacks are authoritative. Every change is handed to the Persister without waiting,
// so a failed or slow store never blocks or reverts a mutation.
type Manager struct {
	mu       sync.Mutex
	key      string
	past     []Snapshot
	present  *Snapshot
	future   []Snapshot
	maxDepth int
	maxAge   time.Duration
	now      func() time.Time
	logger   zerolog.Logger

	persister *Persister
	dirty     bool

	ready   atomic.Bool
	pastN   atomic.Int32
	futureN atomic.Int32
}

// NewManager constructs a Manager. Without a Persister the manager is ready immediately;
// otherwise CanUndo and CanRedo report false until Load or the first SaveState.
func NewManager(cfg Config) *Manager {
	depth := cfg.MaxDepth
	if depth <= 0 {
		depth = DefaultMaxDepth
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	m := &Manager{
		key:       cfg.Key,
		maxDepth:  depth,
		maxAge:    cfg.MaxAge,
		now:       now,
		logger:    cfg.Logger,
		persister: cfg.Persister,
	}
	if m.persister == nil {
		m.ready.Store(true)
	}
	return m
}

// Load restores persisted stacks, discarding snapshots older than the max age. It reports whether
// a history was restored. Nothing is restored once the manager has recorded state of its own.
func (m *Manager) Load(ctx context.Context) bool {
	defer m.ready.Store(true)
	if m.persister == nil {
		return false
	}
	st, ok, err := m.persister.Store().Load(ctx, m.key)
	if err != nil {
		m.logger.Warn().Err(err).Str("session_key", m.key).Msg("history_load_failed")
		return false
	}
	if !ok {
		return false
	}
	if m.maxAge > 0 {
		st = st.dropStale(m.now().Add(-m.maxAge))
	}
	if st.Empty() {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dirty {
		return false
	}
	m.past = st.Past
	m.present = st.Present
	m.future = st.Future
	m.trimLocked()
	m.syncCountsLocked()
	return true
}

// SaveState records a new present state, pushing the previous one onto the undo stack and
// clearing redo. It reports false only when the change could not be queued for persistence;
// the in-memory stacks are updated regardless.
func (m *Manager) SaveState(items []cart.Line, vouchers []voucher.Applied, label string) bool {
	snap := NewSnapshot(items, vouchers, label, m.now())
	m.mu.Lock()
	if m.present != nil {
		m.past = append(m.past, *m.present)
	}
	m.present = &snap
	m.future = nil
	m.dirty = true
	m.trimLocked()
	m.syncCountsLocked()
	st := m.stacksLocked()
	m.mu.Unlock()
	m.ready.Store(true)
	return m.persist(st)
}

// Undo moves one step back and returns the restored state, or nil when there is nothing to undo.
func (m *Manager) Undo() *Snapshot {
	m.mu.Lock()
	if len(m.past) == 0 || m.present == nil {
		m.mu.Unlock()
		return nil
	}
	m.future = append(m.future, *m.present)
	prev := m.past[len(m.past)-1]
	m.past = m.past[:len(m.past)-1]
	m.present = &prev
	m.dirty = true
	m.syncCountsLocked()
	st := m.stacksLocked()
	out := prev.Clone()
	m.mu.Unlock()
	m.persist(st)
	return &out
}

// Redo moves one step forward and returns the restored state, or nil when there is nothing to redo.
func (m *Manager) Redo() *Snapshot {
	m.mu.Lock()
	if len(m.future) == 0 {
		m.mu.Unlock()
		return nil
	}
	if m.present != nil {
		m.past = append(m.past, *m.present)
	}
	next := m.future[len(m.future)-1]
	m.future = m.future[:len(m.future)-1]
	m.present = &next
	m.dirty = true
	m.trimLocked()
	m.syncCountsLocked()
	st := m.stacksLocked()
	out := next.Clone()
	m.mu.Unlock()
	m.persist(st)
	return &out
}

// CanUndo reports whether Undo would restore a state. It never blocks.
func (m *Manager) CanUndo() bool {
	return m.ready.Load() && m.pastN.Load() > 0
}

// CanRedo reports whether Redo would restore a state. It never blocks.
func (m *Manager) CanRedo() bool {
	return m.ready.Load() && m.futureN.Load() > 0
}

// Present returns a copy of the current state, or nil before the first save.
func (m *Manager) Present() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.present == nil {
		return nil
	}
	out := m.present.Clone()
	return &out
}

// Depth returns the sizes of the undo and redo stacks.
func (m *Manager) Depth() (past, future int) {
	return int(m.pastN.Load()), int(m.futureN.Load())
}

// ClearHistory empties both stacks and the present state.
func (m *Manager) ClearHistory() {
	m.mu.Lock()
	m.past = nil
	m.future = nil
	m.present = nil
	m.dirty = true
	m.syncCountsLocked()
	st := m.stacksLocked()
	m.mu.Unlock()
	m.persist(st)
}

// Discard removes the persisted history, typically when the session is closed.
func (m *Manager) Discard() {
	if m.persister != nil {
		m.persister.EnqueueDelete(m.key)
	}
}

func (m *Manager) persist(st Stacks) bool {
	if m.persister == nil {
		return true
	}
	if !m.persister.Enqueue(m.key, st) {
		m.logger.Warn().Str("session_key", m.key).Msg("history_persist_skipped")
		return false
	}
	return true
}

func (m *Manager) trimLocked() {
	if over := len(m.past) - m.maxDepth; over > 0 {
		m.past = append([]Snapshot(nil), m.past[over:]...)
	}
	if over := len(m.future) - m.maxDepth; over > 0 {
		m.future = append([]Snapshot(nil), m.future[over:]...)
	}
}

func (m *Manager) syncCountsLocked() {
	m.pastN.Store(int32(len(m.past)))
	m.futureN.Store(int32(len(m.future)))
}

func (m *Manager) stacksLocked() Stacks {
	st := Stacks{Past: cloneAll(m.past), Future: cloneAll(m.future), SavedAt: m.now()}
	if m.present != nil {
		p := m.present.Clone()
		st.Present = &p
	}
	return st
}
