package ledger

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/klog/v2"

	"github.com/linskybing/faculty-admission/internal/directory"
	"github.com/linskybing/faculty-admission/internal/resources"
	"github.com/linskybing/faculty-admission/internal/timewindow"
)

var (
	// ErrInsufficientCapacity is returned by Reserve when the entry's
	// available bundle does not cover the request.
	ErrInsufficientCapacity = errors.New("insufficient capacity")
	// ErrCannotReleaseOverflowPool is returned when a release names the
	// overflow pool as its source.
	ErrCannotReleaseOverflowPool = errors.New("cannot release the overflow pool")
	// ErrNotFound is returned by Get for a (day, allocation) with no entry.
	ErrNotFound = errors.New("ledger entry not found")
	// ErrKeyNotLocked is returned when a transaction addresses a key it did
	// not lock.
	ErrKeyNotLocked = errors.New("ledger key not locked by transaction")
)

// CapacitySource supplies the base capacity new entries are seeded with.
type CapacitySource interface {
	Get(id string) (directory.Allocation, error)
}

// Tx is a view of the ledger restricted to the keys locked by Do. All its
// operations run without further locking, so a check followed by a reserve
// inside one Tx is atomic with respect to every other writer of those keys.
type Tx interface {
	// EnsureEntry returns the entry, creating it with total = available = seed
	// if it does not exist yet.
	EnsureEntry(day timewindow.Day, allocationID string, seed resources.Bundle) (Entry, error)
	// HasSufficientCapacity reports whether the entry's available bundle
	// covers requested on every field. A missing entry is created from the
	// allocation's base capacity.
	HasSufficientCapacity(day timewindow.Day, allocationID string, requested resources.Bundle) (bool, error)
	// Reserve decrements available by requested and records requestID.
	// Reserving an id already recorded on the entry is a no-op.
	Reserve(day timewindow.Day, allocationID string, requested resources.Bundle, requestID string) error
}

// Ledger tracks total and available capacity per (day, allocation). Writes on
// the same key are serialized; different keys proceed in parallel.
type Ledger struct {
	source CapacitySource
	store  Store
	locks  *keyedMutex

	// mu guards the entries map only. Entry values are replaced whole on
	// commit and never mutated in place.
	mu      sync.RWMutex
	entries map[Key]Entry
}

// New loads the ledger from store.
func New(source CapacitySource, store Store) (*Ledger, error) {
	loaded, err := store.LoadEntries()
	if err != nil {
		return nil, errors.Wrap(err, "loading ledger entries")
	}
	entries := make(map[Key]Entry, len(loaded))
	for _, e := range loaded {
		if err := e.Validate(); err != nil {
			return nil, errors.Wrap(err, "loaded ledger entry")
		}
		entries[e.Key()] = e.DeepCopy()
	}
	klog.V(2).InfoS("Ledger loaded", "entries", len(entries))
	return &Ledger{
		source:  source,
		store:   store,
		locks:   newKeyedMutex(),
		entries: entries,
	}, nil
}

// Do locks keys, in a deadlock-free order, and runs fn with a Tx over them.
func (l *Ledger) Do(fn func(Tx) error, keys ...Key) error {
	locked, unlock := l.locks.lock(keys...)
	defer unlock()
	return fn(&txn{l: l, locked: locked})
}

// EnsureEntry is Tx.EnsureEntry in its own critical section.
func (l *Ledger) EnsureEntry(day timewindow.Day, allocationID string, seed resources.Bundle) (Entry, error) {
	var out Entry
	err := l.Do(func(tx Tx) error {
		var err error
		out, err = tx.EnsureEntry(day, allocationID, seed)
		return err
	}, Key{Day: day, AllocationID: allocationID})
	return out, err
}

// HasSufficientCapacity is Tx.HasSufficientCapacity in its own critical section.
func (l *Ledger) HasSufficientCapacity(day timewindow.Day, allocationID string, requested resources.Bundle) (bool, error) {
	var ok bool
	err := l.Do(func(tx Tx) error {
		var err error
		ok, err = tx.HasSufficientCapacity(day, allocationID, requested)
		return err
	}, Key{Day: day, AllocationID: allocationID})
	return ok, err
}

// Reserve is Tx.Reserve in its own critical section.
func (l *Ledger) Reserve(day timewindow.Day, allocationID string, requested resources.Bundle, requestID string) error {
	return l.Do(func(tx Tx) error {
		return tx.Reserve(day, allocationID, requested, requestID)
	}, Key{Day: day, AllocationID: allocationID})
}

// Get returns a copy of the entry without creating it.
func (l *Ledger) Get(day timewindow.Day, allocationID string) (Entry, error) {
	key := Key{Day: day, AllocationID: allocationID}
	e, ok := l.get(key)
	if !ok {
		return Entry{}, errors.Wrapf(ErrNotFound, "%s", key)
	}
	return e.DeepCopy(), nil
}

// Entries returns copies of the entries for day, or of all entries when day
// is empty, sorted by key.
func (l *Ledger) Entries(day timewindow.Day) []Entry {
	l.mu.RLock()
	out := make([]Entry, 0, len(l.entries))
	for k, e := range l.entries {
		if day == "" || k.Day == day {
			out = append(out, e.DeepCopy())
		}
	}
	l.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key().less(out[j].Key()) })
	return out
}

func (l *Ledger) get(key Key) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[key]
	return e, ok
}

// commit persists entries and then publishes them. A failed save leaves the
// in-memory ledger untouched.
func (l *Ledger) commit(entries ...Entry) error {
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	if err := l.store.SaveEntries(entries...); err != nil {
		return errors.Wrap(err, "saving ledger entries")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range entries {
		l.entries[e.Key()] = e
	}
	return nil
}

type txn struct {
	l      *Ledger
	locked sets.Set[Key]
}

func (t *txn) check(key Key) error {
	if !t.locked.Has(key) {
		return errors.Wrapf(ErrKeyNotLocked, "%s", key)
	}
	return nil
}

// lookup returns the committed entry for key, or a new uncommitted one seeded
// with seed, or with the allocation's base capacity when seed is nil.
func (t *txn) lookup(key Key, seed *resources.Bundle) (Entry, bool, error) {
	if e, ok := t.l.get(key); ok {
		return e, false, nil
	}
	var b resources.Bundle
	if seed != nil {
		b = *seed
	} else {
		a, err := t.l.source.Get(key.AllocationID)
		if err != nil {
			return Entry{}, false, err
		}
		b = a.BaseCapacity
	}
	if err := b.Validate(); err != nil {
		return Entry{}, false, errors.Wrapf(err, "seed for %s", key)
	}
	return newEntry(key, b), true, nil
}

// ensure is lookup plus committing the entry when it is new.
func (t *txn) ensure(key Key, seed *resources.Bundle) (Entry, error) {
	e, created, err := t.lookup(key, seed)
	if err != nil {
		return Entry{}, err
	}
	if created {
		if err := t.l.commit(e); err != nil {
			return Entry{}, err
		}
		klog.V(2).InfoS("Ledger entry created", "day", key.Day, "allocation", key.AllocationID, "total", e.Total)
	}
	return e, nil
}

func (t *txn) EnsureEntry(day timewindow.Day, allocationID string, seed resources.Bundle) (Entry, error) {
	key := Key{Day: day, AllocationID: allocationID}
	if err := t.check(key); err != nil {
		return Entry{}, err
	}
	e, err := t.ensure(key, &seed)
	if err != nil {
		return Entry{}, err
	}
	return e.DeepCopy(), nil
}

func (t *txn) HasSufficientCapacity(day timewindow.Day, allocationID string, requested resources.Bundle) (bool, error) {
	key := Key{Day: day, AllocationID: allocationID}
	if err := t.check(key); err != nil {
		return false, err
	}
	e, err := t.ensure(key, nil)
	if err != nil {
		return false, err
	}
	ok := e.Available.Covers(requested)
	klog.V(2).InfoS("Ledger sufficiency check", "day", day, "allocation", allocationID,
		"requested", requested, "available", e.Available, "sufficient", ok)
	return ok, nil
}

func (t *txn) Reserve(day timewindow.Day, allocationID string, requested resources.Bundle, requestID string) error {
	key := Key{Day: day, AllocationID: allocationID}
	if err := t.check(key); err != nil {
		return err
	}
	if requestID == "" {
		return errors.New("reserve: request id is required")
	}
	if err := requested.Validate(); err != nil {
		return err
	}
	e, err := t.ensure(key, nil)
	if err != nil {
		return err
	}
	if e.AssignedRequestIDs.Has(requestID) {
		klog.V(2).InfoS("Reserve: request already assigned, skipping", "request", requestID, "day", day, "allocation", allocationID)
		return nil
	}
	if !e.Available.Covers(requested) {
		return errors.Wrapf(ErrInsufficientCapacity, "%s: requested %s, available %s", key, requested, e.Available)
	}

	next := e.DeepCopy()
	next.Available = e.Available.Sub(requested)
	next.AssignedRequestIDs.Insert(requestID)
	if err := t.l.commit(next); err != nil {
		return err
	}
	klog.InfoS("Reserved capacity", "request", requestID, "day", day, "allocation", allocationID,
		"bundle", requested, "available", next.Available)
	return nil
}
