package settings

import "sync"

// MemoryStore is an in-memory Store and Writer.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates a store holding a copy of initial.
func NewMemoryStore(initial map[string]string) *MemoryStore {
	store := &MemoryStore{
		values: make(map[string]string, len(initial)),
	}
	for k, v := range initial {
		store.values[k] = v
	}
	return store
}

// Get returns the raw value for key.
func (m *MemoryStore) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	return v, ok
}

// Set stores value under key.
func (m *MemoryStore) Set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = value
}

// Values returns a copy of every stored value.
func (m *MemoryStore) Values() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]string, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}
