package storage

import (
	"context"
	"sync"
)

// MemoryStore keeps the state in process. It backs dry runs and tests.
type MemoryStore struct {
	mu    sync.Mutex
	state *MultiplierState
}

var _ StateStore = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store; LoadState reports ErrStateNotFound
// until the first save.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// NewMemoryStoreFrom returns a store seeded with a copy of state.
func NewMemoryStoreFrom(state MultiplierState) *MemoryStore {
	clone := state.Clone()
	return &MemoryStore{state: &clone}
}

// LoadState implements StateStore.
func (m *MemoryStore) LoadState(ctx context.Context) (MultiplierState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return MultiplierState{}, ErrStateNotFound
	}
	return m.state.Clone(), nil
}

// SaveState implements StateStore.
func (m *MemoryStore) SaveState(ctx context.Context, state MultiplierState) error {
	clone := state.Clone()
	clone.normalize()
	m.mu.Lock()
	m.state = &clone
	m.mu.Unlock()
	return nil
}
