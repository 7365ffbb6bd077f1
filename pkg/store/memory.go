package store

import (
	"context"
	"sync"
)

// MemoryStore is a map-backed CheckpointStore for tests and ephemeral
// runs. State does not survive the process.
type MemoryStore struct {
	mu          sync.Mutex
	checkpoints map[string]Checkpoint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{checkpoints: make(map[string]Checkpoint)}
}

func (m *MemoryStore) Load(_ context.Context, namespace string) (*Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp, ok := m.checkpoints[namespace]
	if !ok {
		return nil, ErrNotFound
	}
	out := cp
	if cp.UnsentBlock != nil {
		block := *cp.UnsentBlock
		out.UnsentBlock = &block
	}
	return &out, nil
}

func (m *MemoryStore) Save(_ context.Context, cp *Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *cp
	if cp.UnsentBlock != nil {
		block := *cp.UnsentBlock
		stored.UnsentBlock = &block
	}
	m.checkpoints[cp.Namespace] = stored
	return nil
}

func (m *MemoryStore) MarkEmitted(_ context.Context, namespace string, height uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp, ok := m.checkpoints[namespace]
	if !ok || cp.LastSealedHeight != height {
		return nil
	}
	cp.UnsentBlock = nil
	m.checkpoints[namespace] = cp
	return nil
}

func (m *MemoryStore) Close() error { return nil }
