package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"k8s.io/klog/v2"

	"github.com/linskybing/faculty-admission/internal/decision"
	"github.com/linskybing/faculty-admission/internal/resources"
)

// Namespace prefixes every metric of this package.
const Namespace = "capacity_admission"

var (
	decisionsTotal      *prometheus.CounterVec
	raceLostTotal       prometheus.Counter
	releasedCPUTotal    *prometheus.CounterVec
	releasedGPUTotal    *prometheus.CounterVec
	releasedMemoryTotal *prometheus.CounterVec
)

func init() {
	InitMetrics(Namespace, prometheus.DefaultRegisterer)
}

// InitMetrics creates the admission counters and registers them with reg.
func InitMetrics(namespace string, reg prometheus.Registerer) {
	factory := promauto.With(reg)

	decisionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Admission decisions by verdict and the rule that produced them",
		}, []string{"verdict", "rule"},
	)

	raceLostTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "race_lost_total",
			Help:      "Approvals downgraded because their capacity was gone at booking time",
		},
	)

	releasedCPUTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "released_cpu_total",
			Help:      "CPUs surrendered to the overflow pool",
		}, []string{"allocation"},
	)

	releasedGPUTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "released_gpu_total",
			Help:      "GPUs surrendered to the overflow pool",
		}, []string{"allocation"},
	)

	releasedMemoryTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "released_memory_total",
			Help:      "Memory bytes surrendered to the overflow pool",
		}, []string{"allocation"},
	)
}

// Recorder feeds admission outcomes into the package counters and, when it
// has a store, into the persisted Totals. The zero value only counts in
// process.
type Recorder struct {
	totals TotalsStore
}

// NewRecorder returns a Recorder that also persists into totals.
func NewRecorder(totals TotalsStore) Recorder {
	return Recorder{totals: totals}
}

func (r Recorder) Decision(d decision.Decision) {
	decisionsTotal.WithLabelValues(d.Verdict.String(), string(d.Rule)).Inc()
	r.persist(func(t *Totals) { t.addDecision(d) })
}

func (r Recorder) RaceLost() {
	raceLostTotal.Inc()
	r.persist(func(t *Totals) { t.RaceLost++ })
}

func (r Recorder) Released(allocationID string, surrendered resources.Bundle) {
	releasedCPUTotal.WithLabelValues(allocationID).Add(float64(surrendered.CPU))
	releasedGPUTotal.WithLabelValues(allocationID).Add(float64(surrendered.GPU))
	releasedMemoryTotal.WithLabelValues(allocationID).Add(float64(surrendered.Memory))
	r.persist(func(t *Totals) { t.addReleased(allocationID, surrendered) })
}

// persist never fails the admission operation; a lost count is logged.
func (r Recorder) persist(fn func(*Totals)) {
	if r.totals == nil {
		return
	}
	if err := r.totals.Update(fn); err != nil {
		klog.ErrorS(err, "Persisting admission totals failed")
	}
}
