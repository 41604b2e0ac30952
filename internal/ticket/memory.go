package ticket

import (
	"context"
	"sync"
	"time"

	"github.com/gridforge/marketauth/internal/store/core"
)

// MemoryStore es un Store in-process (dev/testing). El mutex hace del
// consume un compare-and-set serializado.
type MemoryStore struct {
	mu      sync.Mutex
	tickets map[string]*core.DownloadTicket
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tickets: make(map[string]*core.DownloadTicket)}
}

func (m *MemoryStore) InsertTicket(ctx context.Context, t core.DownloadTicket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tickets[t.ID]; exists {
		return core.ErrConflict
	}
	cp := t
	m.tickets[t.ID] = &cp
	return nil
}

func (m *MemoryStore) ConsumeTicket(ctx context.Context, id string, notBefore time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok || t.Consumed || t.CreatedAt.Before(notBefore) {
		return "", core.ErrNotFound
	}
	t.Consumed = true
	return t.Authorization, nil
}

func (m *MemoryStore) PurgeTickets(ctx context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, t := range m.tickets {
		if t.CreatedAt.Before(olderThan) {
			delete(m.tickets, id)
			n++
		}
	}
	return n, nil
}
