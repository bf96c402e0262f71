package history_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kasse-pos/internal/cart"
	"github.com/noah-isme/kasse-pos/internal/history"
	"github.com/noah-isme/kasse-pos/internal/voucher"
)

func line(id string, qty int) cart.Line {
	return cart.Line{ID: id, Name: id, Price: 1, Quantity: qty}
}

func TestUndoOnEmptyHistory(t *testing.T) {
	m := history.NewManager(history.Config{})
	require.Nil(t, m.Undo())
	require.Nil(t, m.Redo())
	require.False(t, m.CanUndo())
	require.False(t, m.CanRedo())

	m.SaveState(nil, nil, "initial")
	require.Nil(t, m.Undo())
	require.False(t, m.CanUndo())
	require.NotNil(t, m.Present())
}

func TestUndoRedoRoundTrip(t *testing.T) {
	m := history.NewManager(history.Config{})
	m.SaveState(nil, nil, "initial")

	items := []cart.Line{line("A", 1)}
	vouchers := []voucher.Applied{{ID: "g", Type: voucher.GiftCard, Amount: 5}}
	require.True(t, m.SaveState(items, vouchers, "add A"))
	items[0].Quantity = 99

	undone := m.Undo()
	require.NotNil(t, undone)
	require.Empty(t, undone.CartItems)
	require.NotNil(t, undone.AppliedVouchers)
	require.True(t, m.CanRedo())

	redone := m.Redo()
	require.NotNil(t, redone)
	require.Equal(t, []cart.Line{line("A", 1)}, redone.CartItems)
	require.Equal(t, vouchers, redone.AppliedVouchers)
	require.Equal(t, "add A", redone.Label)
	require.False(t, m.CanRedo())
	require.True(t, m.CanUndo())

	redone.CartItems[0].Quantity = 7
	require.Equal(t, 1, m.Present().CartItems[0].Quantity)
}

func TestSaveClearsRedo(t *testing.T) {
	m := history.NewManager(history.Config{})
	m.SaveState(nil, nil, "initial")
	m.SaveState([]cart.Line{line("A", 1)}, nil, "a")
	m.Undo()
	require.True(t, m.CanRedo())

	m.SaveState([]cart.Line{line("B", 1)}, nil, "b")
	require.False(t, m.CanRedo())
	past, future := m.Depth()
	require.Equal(t, 1, past)
	require.Equal(t, 0, future)
}

func TestMaxDepthDropsOldest(t *testing.T) {
	m := history.NewManager(history.Config{MaxDepth: 3})
	for i := 0; i < 10; i++ {
		m.SaveState([]cart.Line{line("A", i+1)}, nil, fmt.Sprintf("step %d", i))
	}
	past, _ := m.Depth()
	require.Equal(t, 3, past)

	var last *history.Snapshot
	for m.CanUndo() {
		last = m.Undo()
	}
	require.Equal(t, "step 6", last.Label)
}

func TestClearHistory(t *testing.T) {
	m := history.NewManager(history.Config{})
	m.SaveState(nil, nil, "initial")
	m.SaveState([]cart.Line{line("A", 1)}, nil, "a")
	m.ClearHistory()
	require.False(t, m.CanUndo())
	require.Nil(t, m.Present())

	m.SaveState(nil, nil, "fresh")
	require.False(t, m.CanUndo())
}

func TestPersistenceAndReload(t *testing.T) {
	store := history.NewMemoryStore()
	p := history.NewPersister(history.PersisterConfig{Store: store, Logger: zerolog.Nop()})
	defer p.Close()

	m := history.NewManager(history.Config{Key: "s1", Persister: p})
	require.False(t, m.CanUndo(), "not ready before load")
	m.SaveState(nil, nil, "initial")
	m.SaveState([]cart.Line{line("A", 2)}, nil, "a")

	require.Eventually(t, func() bool {
		st, ok, err := store.Load(context.Background(), "s1")
		return err == nil && ok && len(st.Past) == 1 && st.Present != nil && st.Present.Label == "a"
	}, time.Second, 10*time.Millisecond)

	restored := history.NewManager(history.Config{Key: "s1", Persister: p})
	require.False(t, restored.CanUndo())
	require.True(t, restored.Load(context.Background()))
	require.True(t, restored.CanUndo())
	require.Equal(t, 2, restored.Present().CartItems[0].Quantity)

	restored.Discard()
	require.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestLoadDropsStaleSnapshots(t *testing.T) {
	now := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	store := history.NewMemoryStore()
	old := history.NewSnapshot(nil, nil, "old", now.Add(-3*time.Hour))
	recent := history.NewSnapshot([]cart.Line{line("A", 1)}, nil, "recent", now.Add(-30*time.Minute))
	present := history.NewSnapshot([]cart.Line{line("A", 2)}, nil, "present", now.Add(-time.Minute))
	require.NoError(t, store.Save(context.Background(), "s", history.Stacks{Past: []history.Snapshot{old, recent}, Present: &present}))

	p := history.NewPersister(history.PersisterConfig{Store: store})
	defer p.Close()
	m := history.NewManager(history.Config{Key: "s", MaxAge: time.Hour, Persister: p, Now: func() time.Time { return now }})
	require.True(t, m.Load(context.Background()))
	past, _ := m.Depth()
	require.Equal(t, 1, past)
	require.Equal(t, "recent", m.Undo().Label)

	stalePresent := history.NewSnapshot(nil, nil, "stale", now.Add(-2*time.Hour))
	require.NoError(t, store.Save(context.Background(), "t", history.Stacks{Present: &stalePresent}))
	m2 := history.NewManager(history.Config{Key: "t", MaxAge: time.Hour, Persister: p, Now: func() time.Time { return now }})
	require.False(t, m2.Load(context.Background()))
	require.Nil(t, m2.Present())
}

type failingStore struct {
	history.MemoryStore
	mu    sync.Mutex
	saves int
}

func (f *failingStore) Name() string { return "failing" }

func (f *failingStore) Save(context.Context, string, history.Stacks) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	return errors.New("disk full")
}

func (f *failingStore) Load(context.Context, string) (history.Stacks, bool, error) {
	return history.Stacks{}, false, errors.New("disk full")
}

func (f *failingStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves
}

func TestPersistenceFailureDoesNotAffectStacks(t *testing.T) {
	store := &failingStore{}
	p := history.NewPersister(history.PersisterConfig{Store: store, Logger: zerolog.Nop()})
	defer p.Close()

	m := history.NewManager(history.Config{Key: "s", Persister: p, Logger: zerolog.Nop()})
	require.False(t, m.Load(context.Background()))
	require.True(t, m.SaveState(nil, nil, "initial"))
	require.True(t, m.SaveState([]cart.Line{line("A", 1)}, nil, "a"))
	require.True(t, m.CanUndo())
	require.Eventually(t, func() bool { return store.count() >= 1 }, time.Second, 10*time.Millisecond)
	require.NotNil(t, m.Undo())
}

func TestSaveAfterPersisterClosed(t *testing.T) {
	p := history.NewPersister(history.PersisterConfig{})
	m := history.NewManager(history.Config{Key: "s", Persister: p, Logger: zerolog.Nop()})
	p.Close()
	p.Close()

	require.False(t, m.SaveState([]cart.Line{line("A", 1)}, nil, "a"))
	require.Equal(t, 1, m.Present().CartItems[0].Quantity)
}
