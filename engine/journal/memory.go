// Package journal provides Journal implementations.
package journal

import (
	"context"
	"sync"

	"github.com/meridian/cost-engine/engine"
)

// =============================================================================
// MEMORY JOURNAL - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	entries     []engine.Entry
	byResource  map[engine.ResourceID][]int
	idempotency map[string]bool
}

func NewMemory() *Memory {
	return &Memory{
		byResource:  make(map[engine.ResourceID][]int),
		idempotency: make(map[string]bool),
	}
}

// Append adds a single entry. Append-only.
func (m *Memory) Append(_ context.Context, e engine.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.IdempotencyKey != "" && m.idempotency[e.IdempotencyKey] {
		return engine.ErrDuplicateIdempotencyKey
	}

	idx := len(m.entries)
	m.entries = append(m.entries, e)
	for _, id := range e.Resources {
		m.byResource[id] = append(m.byResource[id], idx)
	}
	if e.IdempotencyKey != "" {
		m.idempotency[e.IdempotencyKey] = true
	}
	return nil
}

func (m *Memory) List(_ context.Context) ([]engine.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]engine.Entry, len(m.entries))
	copy(result, m.entries)
	return result, nil
}

func (m *Memory) ListByResource(_ context.Context, id engine.ResourceID) ([]engine.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idxs := m.byResource[id]
	result := make([]engine.Entry, 0, len(idxs))
	for _, i := range idxs {
		result = append(result, m.entries[i])
	}
	return result, nil
}

func (m *Memory) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[idempotencyKey], nil
}

func (m *Memory) NetExternal(_ context.Context) (engine.Cost, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	net := engine.ZeroCost()
	for _, e := range m.entries {
		net = net.Add(e.External)
	}
	return net, nil
}
