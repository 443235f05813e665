package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linskybing/faculty-admission/internal/decision"
	"github.com/linskybing/faculty-admission/internal/directory"
	"github.com/linskybing/faculty-admission/internal/ledger"
	"github.com/linskybing/faculty-admission/internal/metrics"
	"github.com/linskybing/faculty-admission/internal/request"
	"github.com/linskybing/faculty-admission/internal/resources"
)

func testDirectory(t *testing.T) *directory.Static {
	dir, err := directory.NewStatic("free",
		directory.Allocation{ID: "free"},
		directory.Allocation{ID: "physics", BaseCapacity: resources.New(8, 2, 32)},
	)
	require.NoError(t, err)
	return dir
}

func TestLedgerRoundTrip(t *testing.T) {
	root := t.TempDir()
	d, err := Open(root)
	require.NoError(t, err)

	l, err := ledger.New(testDirectory(t), d.Ledger())
	require.NoError(t, err)
	require.NoError(t, l.Reserve("2025-06-02", "physics", resources.New(2, 1, 4), "r1"))
	_, err = l.Release("2025-06-02", "physics", "free")
	require.NoError(t, err)
	require.NoError(t, d.Close())

	d, err = Open(root)
	require.NoError(t, err)
	defer d.Close()
	reloaded, err := ledger.New(testDirectory(t), d.Ledger())
	require.NoError(t, err)

	src, err := reloaded.Get("2025-06-02", "physics")
	require.NoError(t, err)
	assert.Equal(t, resources.New(8, 2, 32), src.Total)
	assert.True(t, src.Available.IsZero())
	assert.True(t, src.AssignedRequestIDs.Has("r1"))

	pool, err := reloaded.Get("2025-06-02", "free")
	require.NoError(t, err)
	assert.Equal(t, resources.New(6, 1, 28), pool.Total)
	assert.Equal(t, resources.New(6, 1, 28), pool.Available)
}

func TestLedgerSaveFailureKeepsState(t *testing.T) {
	root := t.TempDir()
	s := &LedgerStore{path: filepath.Join(root, "missing-dir", LedgerFile)}
	err := s.SaveEntries(ledger.Entry{Day: "2025-06-02", AllocationID: "physics"})
	require.Error(t, err)
	assert.Empty(t, s.entries)
}

func TestReadLedgerMissingFile(t *testing.T) {
	entries, err := ReadLedger(filepath.Join(t.TempDir(), LedgerFile))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReadLedgerRejectsUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), LedgerFile)
	require.NoError(t, os.WriteFile(path, []byte(`{"version":"v9","entries":[]}`), 0o644))
	_, err := ReadLedger(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format version")
}

func TestRequestStorePersists(t *testing.T) {
	root := t.TempDir()
	d, err := Open(root)
	require.NoError(t, err)
	rs, err := d.Requests()
	require.NoError(t, err)

	created := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	for _, id := range []string{"b", "a", "c"} {
		require.NoError(t, rs.Create(request.Request{
			ID:           id,
			OwnerID:      "alice",
			AllocationID: "physics",
			Bundle:       resources.New(1, 0, 1),
			Status:       decision.PendingManual,
			TargetDay:    "2025-06-02",
			Rule:         decision.RuleManual,
			CreatedAt:    created,
		}))
	}
	err = rs.Create(request.Request{ID: "a"})
	require.True(t, errors.Is(err, request.ErrAlreadyExists), "got %v", err)

	updated, err := rs.SetStatus("a", decision.Approved)
	require.NoError(t, err)
	assert.Equal(t, decision.Approved, updated.Status)
	_, err = rs.SetStatus("zzz", decision.Approved)
	require.True(t, errors.Is(err, request.ErrNotFound), "got %v", err)
	require.NoError(t, d.Close())

	list, err := ReadRequests(filepath.Join(root, RequestsFile))
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"b", "a", "c"}, []string{list[0].ID, list[1].ID, list[2].ID})
	assert.Equal(t, decision.Approved, list[1].Status)
	assert.True(t, list[1].CreatedAt.Equal(created))

	d, err = Open(root)
	require.NoError(t, err)
	defer d.Close()
	rs, err = d.Requests()
	require.NoError(t, err)
	got, err := rs.Get("c")
	require.NoError(t, err)
	assert.Equal(t, resources.New(1, 0, 1), got.Bundle)
	assert.Equal(t, decision.RuleManual, got.Rule)
}

func TestRequestStoreWriteFailureKeepsState(t *testing.T) {
	rs, err := newRequestStore(filepath.Join(t.TempDir(), "missing-dir", RequestsFile))
	require.NoError(t, err)
	require.Error(t, rs.Create(request.Request{ID: "a"}))
	_, err = rs.Get("a")
	require.True(t, errors.Is(err, request.ErrNotFound), "got %v", err)
}

func TestOpenIsExclusive(t *testing.T) {
	root := t.TempDir()
	first, err := Open(root)
	require.NoError(t, err)

	acquired := make(chan *Dir)
	go func() {
		second, err := Open(root)
		if err != nil {
			t.Errorf("second Open: %v", err)
			close(acquired)
			return
		}
		acquired <- second
	}()

	select {
	case <-acquired:
		t.Fatalf("second Open succeeded while the first holder was open")
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, first.Close())
	select {
	case second := <-acquired:
		require.NotNil(t, second)
		require.NoError(t, second.Close())
	case <-time.After(5 * time.Second):
		t.Fatalf("second Open did not acquire the lock after Close")
	}
}

func TestTotalsStoreAccumulatesAcrossOpens(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 2; i++ {
		d, err := Open(root)
		require.NoError(t, err)
		r := metrics.NewRecorder(d.Totals())
		r.Decision(decision.Decision{Verdict: decision.Approved, Rule: decision.RuleOverflowWindow})
		r.Released("physics", resources.New(2, 1, 4))
		require.NoError(t, d.Close())
	}

	totals, err := ReadTotals(filepath.Join(root, TotalsFile))
	require.NoError(t, err)
	assert.EqualValues(t, 2, totals.Decisions["APPROVED"]["overflow-window"])
	assert.Equal(t, resources.New(4, 2, 8), totals.Released["physics"])
	assert.Zero(t, totals.RaceLost)
}

func TestReadTotals(t *testing.T) {
	path := filepath.Join(t.TempDir(), TotalsFile)
	totals, err := ReadTotals(path)
	require.NoError(t, err)
	assert.Empty(t, totals.Decisions)

	require.NoError(t, os.WriteFile(path, []byte(`{"version":"v9","totals":{}}`), 0o644))
	_, err = ReadTotals(path)
	require.Error(t, err)

	s := &TotalsStore{path: path}
	require.Error(t, s.Update(func(*metrics.Totals) {}), "an unreadable file is never overwritten")
}
