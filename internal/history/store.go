package history

import (
	"context"
	"errors"
	"sync"
)

// ErrStoreUnavailable is returned by stores that are not configured.
var ErrStoreUnavailable = errors.New("history store unavailable")

// Store persists history stacks per session key.
type Store interface {
	Load(ctx context.Context, key string) (Stacks, bool, error)
	Save(ctx context.Context, key string, st Stacks) error
	Delete(ctx context.Context, key string) error
	Name() string
}

// MemoryStore keeps stacks in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]Stacks
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]Stacks)}
}

// Name implements Store.
func (m *MemoryStore) Name() string { return "memory" }

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context, key string) (Stacks, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.data[key]
	if !ok {
		return Stacks{}, false, nil
	}
	return st.clone(), true, nil
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, key string, st Stacks) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = st.clone()
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Len returns the number of stored sessions.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
