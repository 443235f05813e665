package store

import (
	"sync"

	"github.com/linskybing/faculty-admission/internal/metrics"
)

type totalsFile struct {
	Version string         `json:"version"`
	Totals  metrics.Totals `json:"totals"`
}

// TotalsStore is a metrics.TotalsStore persisting the admission counters in
// one JSON file. Writers hold the state dir lock, so every update starts from
// the latest file.
type TotalsStore struct {
	path string
	mu   sync.Mutex
}

var _ metrics.TotalsStore = (*TotalsStore)(nil)

func (s *TotalsStore) Update(fn func(*metrics.Totals)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	totals, err := ReadTotals(s.path)
	if err != nil {
		return err
	}
	fn(&totals)
	return writeJSON(s.path, totalsFile{Version: formatVersion, Totals: totals})
}

// ReadTotals reads a totals file without locking its state directory. A
// missing file holds zero totals.
func ReadTotals(path string) (metrics.Totals, error) {
	var f totalsFile
	found, err := readJSON(path, &f)
	if err != nil || !found {
		return metrics.Totals{}, err
	}
	if err := checkVersion(path, f.Version); err != nil {
		return metrics.Totals{}, err
	}
	return f.Totals, nil
}
