package metrics

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/linskybing/faculty-admission/internal/decision"
	"github.com/linskybing/faculty-admission/internal/directory"
	"github.com/linskybing/faculty-admission/internal/ledger"
	"github.com/linskybing/faculty-admission/internal/request"
	"github.com/linskybing/faculty-admission/internal/resources"
)

func TestRecorder(t *testing.T) {
	approved := decisionsTotal.WithLabelValues("APPROVED", "overflow-window")
	before := testutil.ToFloat64(approved)
	raceBefore := testutil.ToFloat64(raceLostTotal)
	cpuBefore := testutil.ToFloat64(releasedCPUTotal.WithLabelValues("physics"))
	memBefore := testutil.ToFloat64(releasedMemoryTotal.WithLabelValues("physics"))

	r := Recorder{}
	r.Decision(decision.Decision{Verdict: decision.Approved, Rule: decision.RuleOverflowWindow})
	r.Decision(decision.Decision{Verdict: decision.Approved, Rule: decision.RuleOverflowWindow})
	r.RaceLost()
	r.Released("physics", resources.New(3, 1, 1024))

	assert.Equal(t, before+2, testutil.ToFloat64(approved))
	assert.Equal(t, raceBefore+1, testutil.ToFloat64(raceLostTotal))
	assert.Equal(t, cpuBefore+3, testutil.ToFloat64(releasedCPUTotal.WithLabelValues("physics")))
	assert.Equal(t, memBefore+1024, testutil.ToFloat64(releasedMemoryTotal.WithLabelValues("physics")))
}

func TestInitMetricsCustomRegistry(t *testing.T) {
	oldDecisions, oldRace := decisionsTotal, raceLostTotal
	oldCPU, oldGPU, oldMemory := releasedCPUTotal, releasedGPUTotal, releasedMemoryTotal
	defer func() {
		decisionsTotal, raceLostTotal = oldDecisions, oldRace
		releasedCPUTotal, releasedGPUTotal, releasedMemoryTotal = oldCPU, oldGPU, oldMemory
	}()

	reg := prometheus.NewRegistry()
	InitMetrics("test", reg)
	Recorder{}.RaceLost()

	expected := `
# HELP test_race_lost_total Approvals downgraded because their capacity was gone at booking time
# TYPE test_race_lost_total counter
test_race_lost_total 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "test_race_lost_total"))
}

func TestLedgerCollector(t *testing.T) {
	entries := []ledger.Entry{{
		Day:                "2025-06-02",
		AllocationID:       "physics",
		Total:              resources.New(8, 2, 1024),
		Available:          resources.New(6, 1, 512),
		AssignedRequestIDs: sets.New("r1"),
	}}
	c := NewLedgerCollector("test", func() ([]ledger.Entry, error) { return entries, nil })

	expected := `
# HELP test_ledger_available Unreserved capacity of a ledger entry
# TYPE test_ledger_available gauge
test_ledger_available{allocation="physics",day="2025-06-02",resource="cpu"} 6
test_ledger_available{allocation="physics",day="2025-06-02",resource="gpu"} 1
test_ledger_available{allocation="physics",day="2025-06-02",resource="memory"} 512
# HELP test_ledger_total Total capacity of a ledger entry
# TYPE test_ledger_total gauge
test_ledger_total{allocation="physics",day="2025-06-02",resource="cpu"} 8
test_ledger_total{allocation="physics",day="2025-06-02",resource="gpu"} 2
test_ledger_total{allocation="physics",day="2025-06-02",resource="memory"} 1024
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected)))
}

func TestLedgerCollectorSnapshotError(t *testing.T) {
	c := NewLedgerCollector("test", func() ([]ledger.Entry, error) { return nil, errors.New("unreadable") })
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(c))
	_, err := reg.Gather()
	require.Error(t, err)
}

func TestAllocationCollector(t *testing.T) {
	dir, err := directory.NewStatic("free",
		directory.Allocation{ID: "free"},
		directory.Allocation{ID: "physics", BaseCapacity: resources.New(8, 2, 1024)},
	)
	require.NoError(t, err)
	c := NewAllocationCollector("test", dir)
	expected := `
# HELP test_allocation_base_capacity Daily base capacity new ledger entries are seeded with
# TYPE test_allocation_base_capacity gauge
test_allocation_base_capacity{allocation="free",resource="cpu"} 0
test_allocation_base_capacity{allocation="free",resource="gpu"} 0
test_allocation_base_capacity{allocation="free",resource="memory"} 0
test_allocation_base_capacity{allocation="physics",resource="cpu"} 8
test_allocation_base_capacity{allocation="physics",resource="gpu"} 2
test_allocation_base_capacity{allocation="physics",resource="memory"} 1024
# HELP test_allocation_overflow_pool 1 for the allocation designated as the overflow pool
# TYPE test_allocation_overflow_pool gauge
test_allocation_overflow_pool{allocation="free"} 1
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected)))
}

func TestRequestCollector(t *testing.T) {
	requests := []request.Request{
		{ID: "a", AllocationID: "physics", Status: decision.Approved},
		{ID: "b", AllocationID: "physics", Status: decision.Approved},
		{ID: "c", AllocationID: "physics", Status: decision.PendingManual},
		{ID: "d", AllocationID: "law", Status: decision.WaitingForOverflow},
	}
	c := NewRequestCollector("test", func() ([]request.Request, error) { return requests, nil })
	expected := `
# HELP test_requests Stored requests by allocation and status
# TYPE test_requests gauge
test_requests{allocation="law",status="WAITING_FOR_OVERFLOW"} 1
test_requests{allocation="physics",status="APPROVED"} 2
test_requests{allocation="physics",status="PENDING_MANUAL"} 1
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected)))
}

type memoryTotals struct {
	totals Totals
	err    error
}

func (m *memoryTotals) Update(fn func(*Totals)) error {
	if m.err != nil {
		return m.err
	}
	fn(&m.totals)
	return nil
}

func TestRecorderPersistsTotals(t *testing.T) {
	store := &memoryTotals{}
	r := NewRecorder(store)
	r.Decision(decision.Decision{Verdict: decision.Approved, Rule: decision.RuleOverflowWindow})
	r.Decision(decision.Decision{Verdict: decision.Approved, Rule: decision.RuleOverflowWindow})
	r.Decision(decision.Decision{Verdict: decision.PendingManual, Rule: decision.RuleManual})
	r.RaceLost()
	r.Released("physics", resources.New(3, 1, 1024))
	r.Released("physics", resources.New(1, 0, 1024))

	assert.Equal(t, map[string]map[string]int64{
		"APPROVED":       {"overflow-window": 2},
		"PENDING_MANUAL": {"manual": 1},
	}, store.totals.Decisions)
	assert.EqualValues(t, 1, store.totals.RaceLost)
	assert.Equal(t, resources.New(4, 1, 2048), store.totals.Released["physics"])

	// a failing store still counts in process
	raceBefore := testutil.ToFloat64(raceLostTotal)
	NewRecorder(&memoryTotals{err: errors.New("read-only")}).RaceLost()
	assert.Equal(t, raceBefore+1, testutil.ToFloat64(raceLostTotal))
}

func TestTotalsCollector(t *testing.T) {
	totals := Totals{
		Decisions: map[string]map[string]int64{
			"APPROVED": {"overflow-window": 2, "operator": 1},
			"REJECTED": {"closed": 4},
		},
		RaceLost: 1,
		Released: map[string]resources.Bundle{"physics": resources.New(3, 1, 1024)},
	}
	c := NewTotalsCollector("test", func() (Totals, error) { return totals, nil })
	expected := `
# HELP test_decisions_total Admission decisions by verdict and the rule that produced them
# TYPE test_decisions_total counter
test_decisions_total{rule="closed",verdict="REJECTED"} 4
test_decisions_total{rule="operator",verdict="APPROVED"} 1
test_decisions_total{rule="overflow-window",verdict="APPROVED"} 2
# HELP test_race_lost_total Approvals downgraded because their capacity was gone at booking time
# TYPE test_race_lost_total counter
test_race_lost_total 1
# HELP test_released_cpu_total CPUs surrendered to the overflow pool
# TYPE test_released_cpu_total counter
test_released_cpu_total{allocation="physics"} 3
# HELP test_released_gpu_total GPUs surrendered to the overflow pool
# TYPE test_released_gpu_total counter
test_released_gpu_total{allocation="physics"} 1
# HELP test_released_memory_total Memory bytes surrendered to the overflow pool
# TYPE test_released_memory_total counter
test_released_memory_total{allocation="physics"} 1024
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected)))

	empty := NewTotalsCollector("test", func() (Totals, error) { return Totals{}, nil })
	assert.Equal(t, 1, testutil.CollectAndCount(empty), "only race_lost_total has no labels")
}
