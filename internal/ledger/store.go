package ledger

import (
	"sync"
)

// Store persists ledger entries. SaveEntries must be durable before it
// returns and must apply all given entries or none of them.
type Store interface {
	LoadEntries() ([]Entry, error)
	SaveEntries(entries ...Entry) error
}

// MemoryStore is a Store that keeps entries in memory only. It is suitable
// for tests and for embedding the ledger where durability is handled elsewhere.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[Key]Entry
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[Key]Entry)}
}

func (m *MemoryStore) LoadEntries() ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.DeepCopy())
	}
	return out, nil
}

func (m *MemoryStore) SaveEntries(entries ...Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		m.entries[e.Key()] = e.DeepCopy()
	}
	return nil
}
