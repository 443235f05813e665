package request

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/linskybing/faculty-admission/internal/decision"
)

var (
	// ErrNotFound is returned for an unknown request id.
	ErrNotFound = errors.New("request not found")
	// ErrAlreadyExists is returned when creating a request whose id is taken.
	ErrAlreadyExists = errors.New("request already exists")
)

// Store persists requests. Writes must be durable before they return.
type Store interface {
	Create(r Request) error
	Get(id string) (Request, error)
	// SetStatus replaces the status and returns the updated request.
	SetStatus(id string, status decision.Verdict) (Request, error)
	// List returns every request in creation order.
	List() ([]Request, error)
}

// MemoryStore is a Store without durability.
type MemoryStore struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]Request
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]Request)}
}

// Load replaces the store content with requests, which must be in creation
// order.
func (m *MemoryStore) Load(requests []Request) error {
	byID := make(map[string]Request, len(requests))
	order := make([]string, 0, len(requests))
	for _, r := range requests {
		if _, dup := byID[r.ID]; dup {
			return errors.Wrapf(ErrAlreadyExists, "%q", r.ID)
		}
		byID[r.ID] = r
		order = append(order, r.ID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID, m.order = byID, order
	return nil
}

func (m *MemoryStore) Create(r Request) error {
	if r.ID == "" {
		return errors.New("request without id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[r.ID]; ok {
		return errors.Wrapf(ErrAlreadyExists, "%q", r.ID)
	}
	m.byID[r.ID] = r
	m.order = append(m.order, r.ID)
	return nil
}

func (m *MemoryStore) Get(id string) (Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.byID[id]
	if !ok {
		return Request{}, errors.Wrapf(ErrNotFound, "%q", id)
	}
	return r, nil
}

func (m *MemoryStore) SetStatus(id string, status decision.Verdict) (Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[id]
	if !ok {
		return Request{}, errors.Wrapf(ErrNotFound, "%q", id)
	}
	r.Status = status
	m.byID[id] = r
	return r, nil
}

func (m *MemoryStore) List() ([]Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Request, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.byID[id])
	}
	return out, nil
}
