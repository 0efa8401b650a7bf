package session

import (
	"maps"
	"sync"
)

// Memory is an open-ended per-session fact store: the last app, namespace,
// image and so on. Values may be stale; workflows treat them as hints.
type Memory struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewMemory returns an empty Memory.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]any)}
}

// Update merges values, skipping nil values so a missing fact never erases
// a remembered one.
func (m *Memory) Update(values map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range values {
		if v == nil {
			continue
		}
		m.values[k] = v
	}
}

// Set stores one value. A nil value is ignored.
func (m *Memory) Set(key string, value any) {
	m.Update(map[string]any{key: value})
}

// Get returns the value stored under key.
func (m *Memory) Get(key string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

// GetString returns the value under key when it is a string.
func (m *Memory) GetString(key string) string {
	v, _ := m.Get(key)
	s, _ := v.(string)
	return s
}

// GetContext returns a snapshot copy of every stored fact.
func (m *Memory) GetContext() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.values)
}

// Len returns the number of stored facts.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}

// Clear removes the given keys, or everything when none are given. Keys
// that are not present are ignored.
func (m *Memory) Clear(keys ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(keys) == 0 {
		m.values = make(map[string]any)
		return
	}
	for _, k := range keys {
		delete(m.values, k)
	}
}
