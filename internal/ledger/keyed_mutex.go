package ledger

import (
	"sort"
	"sync"

	"k8s.io/apimachinery/pkg/util/sets"
)

// keyedMutex serializes work per ledger key. Locking several keys at once
// always acquires them in key order, so two callers locking overlapping sets
// cannot deadlock.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[Key]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[Key]*sync.Mutex)}
}

func (k *keyedMutex) get(key Key) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	return m
}

// lock acquires every distinct key and returns the set locked plus a
// function releasing them.
func (k *keyedMutex) lock(keys ...Key) (sets.Set[Key], func()) {
	locked := sets.New(keys...)
	ordered := locked.UnsortedList()
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].less(ordered[j]) })

	mutexes := make([]*sync.Mutex, 0, len(ordered))
	for _, key := range ordered {
		m := k.get(key)
		m.Lock()
		mutexes = append(mutexes, m)
	}
	return locked, func() {
		for i := len(mutexes) - 1; i >= 0; i-- {
			mutexes[i].Unlock()
		}
	}
}
