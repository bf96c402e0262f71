package register

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/kasse-pos/internal/obs"
)

// ErrSessionNotFound is returned for unknown or closed session ids.
var ErrSessionNotFound = errors.New("session not found")

// Registry owns the open register sessions of this process.
type Registry struct {
	deps    *Deps
	idleTTL time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry returns a registry. Sessions idle for longer than idleTTL are dropped by Sweep;
// a zero idleTTL keeps them until closed.
func NewRegistry(deps Deps, idleTTL time.Duration) *Registry {
	return &Registry{
		deps:     &deps,
		idleTTL:  idleTTL,
		sessions: make(map[string]*Session),
	}
}

// Create opens a session seeded with an empty sale.
func (r *Registry) Create() *Session {
	s := newSession(uuid.NewString(), r.deps)
	s.seed()
	r.mu.Lock()
	r.sessions[s.id] = s
	n := len(r.sessions)
	r.mu.Unlock()
	obs.SetActiveSessions(n)
	return s
}

// Get returns an open session.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Resume returns the open session for id, or reopens it from persisted history.
func (r *Registry) Resume(ctx context.Context, id string) (*Session, error) {
	if s, err := r.Get(id); err == nil {
		return s, nil
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrSessionNotFound
	}
	s := newSession(id, r.deps)
	if !s.restore(ctx) {
		return nil, ErrSessionNotFound
	}
	r.mu.Lock()
	if existing, ok := r.sessions[id]; ok {
		r.mu.Unlock()
		return existing, nil
	}
	r.sessions[id] = s
	n := len(r.sessions)
	r.mu.Unlock()
	obs.SetActiveSessions(n)
	r.deps.Logger.Info().Str("session_id", id).Msg("session_resumed")
	return s, nil
}

// Close removes the session and its persisted history.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	n := len(r.sessions)
	r.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	s.history.Discard()
	obs.SetActiveSessions(n)
	return nil
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep drops sessions idle since before now-idleTTL. Their history stays persisted so they can
// be resumed until it goes stale.
func (r *Registry) Sweep(now time.Time) int {
	if r.idleTTL <= 0 {
		return 0
	}
	cutoff := now.Add(-r.idleTTL)
	r.mu.Lock()
	removed := 0
	for id, s := range r.sessions {
		if s.idleSince().Before(cutoff) {
			delete(r.sessions, id)
			removed++
		}
	}
	n := len(r.sessions)
	r.mu.Unlock()
	if removed > 0 {
		obs.SetActiveSessions(n)
		r.deps.Logger.Info().Int("removed", removed).Int("open", n).Msg("sessions_swept")
	}
	return removed
}

// Run sweeps idle sessions every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 || r.idleTTL <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(r.deps.now())
		}
	}
}
