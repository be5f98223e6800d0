package catalog

import (
	"context"
	"sync"
)

// Memory is an in-process Store, used when persistence is disabled
type Memory struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemory creates an empty in-memory Store
func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]byte)}
}

func (m *Memory) Put(_ context.Context, r *Recording) error {
	data, err := prepare(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[r.ID] = data
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (Recording, error) {
	m.mu.RLock()
	data, ok := m.entries[id]
	m.mu.RUnlock()
	if !ok {
		return Recording{}, ErrNotFound
	}
	return decode(data)
}

func (m *Memory) List(_ context.Context, limit int) ([]Recording, error) {
	m.mu.RLock()
	out := make([]Recording, 0, len(m.entries))
	for _, data := range m.entries {
		r, err := decode(data)
		if err != nil {
			m.mu.RUnlock()
			return nil, err
		}
		out = append(out, r)
	}
	m.mu.RUnlock()
	return newestFirst(out, limit), nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

func (m *Memory) Close() error {
	return nil
}

var _ Store = (*Memory)(nil)
