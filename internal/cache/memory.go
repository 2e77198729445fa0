package cache

import (
	"context"
	"sync"
	"time"

	"quoteprovider/internal/quote"
)

// entry stores one cached aggregation with its write timestamp.
type entry struct {
	ts   time.Time
	data []quote.Quote
}

// Memory is the process-wide in-memory store. The map is unbounded,
// which is acceptable for the bounded symbol-list cardinality of this
// domain; a mutex guards the read-modify-write against lost updates.
type Memory struct {
	mu    sync.RWMutex
	items map[string]entry

	now func() time.Time // injectable clock for tests
}

func NewMemory() *Memory {
	return &Memory{items: make(map[string]entry), now: time.Now}
}

func (m *Memory) Get(_ context.Context, key string, maxAge time.Duration) ([]quote.Quote, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.items[key]
	if !ok || m.now().Sub(e.ts) > maxAge {
		return nil, false
	}
	return e.data, true
}

func (m *Memory) Put(_ context.Context, key string, quotes []quote.Quote) {
	m.mu.Lock()
	m.items[key] = entry{ts: m.now(), data: quotes}
	m.mu.Unlock()
}
