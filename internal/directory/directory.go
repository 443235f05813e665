package directory

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	configv1 "github.com/linskybing/faculty-admission/api/config/v1"
	"github.com/linskybing/faculty-admission/internal/resources"
)

// ErrNotFound is returned for an allocation id the directory does not know.
var ErrNotFound = errors.New("allocation not found")

// Allocation is a named capacity pool.
type Allocation struct {
	ID           string
	Name         string
	BaseCapacity resources.Bundle
}

// Directory supplies base capacity per allocation and names the overflow pool.
// It is read-only configuration from the engine's point of view.
type Directory interface {
	Get(id string) (Allocation, error)
	OverflowPoolID() string
}

// Static is an in-memory Directory. Replace swaps its content atomically so a
// running process can pick up redistributed capacities.
type Static struct {
	mu          sync.RWMutex
	overflow    string
	allocations map[string]Allocation
}

var _ Directory = (*Static)(nil)

// NewStatic builds a directory. The overflow pool must be one of allocations.
func NewStatic(overflowID string, allocations ...Allocation) (*Static, error) {
	byID := make(map[string]Allocation, len(allocations))
	for _, a := range allocations {
		if a.ID == "" {
			return nil, errors.New("allocation without id")
		}
		if _, dup := byID[a.ID]; dup {
			return nil, errors.Errorf("duplicate allocation %q", a.ID)
		}
		if err := a.BaseCapacity.Validate(); err != nil {
			return nil, errors.Wrapf(err, "allocation %q", a.ID)
		}
		byID[a.ID] = a
	}
	if _, ok := byID[overflowID]; !ok {
		return nil, errors.Errorf("overflow pool %q is not a known allocation", overflowID)
	}
	return &Static{overflow: overflowID, allocations: byID}, nil
}

// FromConfig builds a directory from a validated config.
func FromConfig(config *configv1.Config) (*Static, error) {
	allocations := make([]Allocation, 0, len(config.Allocations))
	for _, a := range config.Allocations {
		b, err := a.Capacity.Bundle()
		if err != nil {
			return nil, errors.Wrapf(err, "allocation %q", a.ID)
		}
		allocations = append(allocations, Allocation{ID: a.ID, Name: a.Name, BaseCapacity: b})
	}
	return NewStatic(config.OverflowPool, allocations...)
}

// Get returns the allocation with the given id.
func (s *Static) Get(id string) (Allocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.allocations[id]
	if !ok {
		return Allocation{}, errors.Wrapf(ErrNotFound, "%q", id)
	}
	return a, nil
}

// OverflowPoolID returns the id of the overflow pool.
func (s *Static) OverflowPoolID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.overflow
}

// List returns all allocations sorted by id.
func (s *Static) List() []Allocation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Allocation, 0, len(s.allocations))
	for _, a := range s.allocations {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Replace swaps in the content of other.
func (s *Static) Replace(other *Static) {
	other.mu.RLock()
	overflow, allocations := other.overflow, other.allocations
	other.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.overflow = overflow
	s.allocations = allocations
	klog.InfoS("Allocation directory replaced", "overflowPool", overflow, "allocations", len(allocations))
}
