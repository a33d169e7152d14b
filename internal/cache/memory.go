package cache

import (
	"context"
	"sync"
	"time"
)

// Memory is a process-local Store
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemory creates an empty in-memory store
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{entries: make(map[string]Entry), ttl: ttl, now: time.Now}
}

func (m *Memory) Get(_ context.Context, key string) (*Entry, bool) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if entry.expired(m.now(), m.ttl) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil, false
	}
	return &entry, true
}

func (m *Memory) Set(_ context.Context, key string, entry Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = m.now()
	}
	m.mu.Lock()
	m.entries[key] = entry
	m.mu.Unlock()
	return nil
}

func (m *Memory) Evict(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }
