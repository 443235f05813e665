package store

import (
	"sort"
	"sync"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/linskybing/faculty-admission/internal/ledger"
	"github.com/linskybing/faculty-admission/internal/resources"
	"github.com/linskybing/faculty-admission/internal/timewindow"
)

type ledgerFile struct {
	Version string        `json:"version"`
	Entries []ledgerEntry `json:"entries"`
}

type ledgerEntry struct {
	Day                timewindow.Day   `json:"day"`
	AllocationID       string           `json:"allocationId"`
	Total              resources.Bundle `json:"total"`
	Available          resources.Bundle `json:"available"`
	AssignedRequestIDs []string         `json:"assignedRequestIds"`
}

func toFileEntry(e ledger.Entry) ledgerEntry {
	return ledgerEntry{
		Day:                e.Day,
		AllocationID:       e.AllocationID,
		Total:              e.Total,
		Available:          e.Available,
		AssignedRequestIDs: sets.List(e.AssignedRequestIDs),
	}
}

func (f ledgerEntry) entry() ledger.Entry {
	return ledger.Entry{
		Day:                f.Day,
		AllocationID:       f.AllocationID,
		Total:              f.Total,
		Available:          f.Available,
		AssignedRequestIDs: sets.New(f.AssignedRequestIDs...),
	}
}

// LedgerStore is a ledger.Store persisting every entry in one JSON file.
type LedgerStore struct {
	path string

	mu      sync.Mutex
	entries map[ledger.Key]ledger.Entry
}

var _ ledger.Store = (*LedgerStore)(nil)

func (s *LedgerStore) LoadEntries() ([]ledger.Entry, error) {
	entries, err := ReadLedger(s.path)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[ledger.Key]ledger.Entry, len(entries))
	for _, e := range entries {
		s.entries[e.Key()] = e.DeepCopy()
	}
	return entries, nil
}

// SaveEntries rewrites the file with entries merged in. On failure the store
// keeps its previous content.
func (s *LedgerStore) SaveEntries(entries ...ledger.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries == nil {
		s.entries = make(map[ledger.Key]ledger.Entry)
	}

	next := make(map[ledger.Key]ledger.Entry, len(s.entries)+len(entries))
	for k, e := range s.entries {
		next[k] = e
	}
	for _, e := range entries {
		next[e.Key()] = e.DeepCopy()
	}
	if err := writeJSON(s.path, encodeLedger(next)); err != nil {
		return err
	}
	s.entries = next
	return nil
}

func encodeLedger(entries map[ledger.Key]ledger.Entry) ledgerFile {
	out := ledgerFile{Version: formatVersion, Entries: make([]ledgerEntry, 0, len(entries))}
	for _, e := range entries {
		out.Entries = append(out.Entries, toFileEntry(e))
	}
	sort.Slice(out.Entries, func(i, j int) bool {
		a, b := out.Entries[i], out.Entries[j]
		if a.Day != b.Day {
			return a.Day < b.Day
		}
		return a.AllocationID < b.AllocationID
	})
	return out
}

// ReadLedger reads a ledger file without locking its state directory. A
// missing file is an empty ledger.
func ReadLedger(path string) ([]ledger.Entry, error) {
	var f ledgerFile
	found, err := readJSON(path, &f)
	if err != nil || !found {
		return nil, err
	}
	if err := checkVersion(path, f.Version); err != nil {
		return nil, err
	}
	out := make([]ledger.Entry, 0, len(f.Entries))
	for _, fe := range f.Entries {
		out = append(out, fe.entry())
	}
	return out, nil
}
