package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/klog/v2"

	"github.com/linskybing/faculty-admission/internal/decision"
	"github.com/linskybing/faculty-admission/internal/resources"
)

// Totals are the admission counters accumulated across every process that
// opened the same state directory.
type Totals struct {
	// Decisions counts decisions by verdict, then by rule.
	Decisions map[string]map[string]int64 `json:"decisions,omitempty"`
	RaceLost  int64                       `json:"raceLost"`
	// Released sums the capacity each allocation surrendered.
	Released map[string]resources.Bundle `json:"released,omitempty"`
}

func (t *Totals) addDecision(d decision.Decision) {
	if t.Decisions == nil {
		t.Decisions = make(map[string]map[string]int64)
	}
	verdict := d.Verdict.String()
	if t.Decisions[verdict] == nil {
		t.Decisions[verdict] = make(map[string]int64)
	}
	t.Decisions[verdict][string(d.Rule)]++
}

func (t *Totals) addReleased(allocationID string, surrendered resources.Bundle) {
	if t.Released == nil {
		t.Released = make(map[string]resources.Bundle)
	}
	t.Released[allocationID] = t.Released[allocationID].Add(surrendered)
}

// TotalsStore persists Totals. Update applies fn to the stored totals and
// writes the result back.
type TotalsStore interface {
	Update(fn func(*Totals)) error
}

// TotalsSnapshot returns the persisted totals to export.
type TotalsSnapshot func() (Totals, error)

// TotalsCollector exports persisted Totals under the same names the
// in-process counters use, so a scrape sees what every CLI run recorded.
type TotalsCollector struct {
	snapshot       TotalsSnapshot
	decisions      *prometheus.Desc
	raceLost       *prometheus.Desc
	releasedCPU    *prometheus.Desc
	releasedGPU    *prometheus.Desc
	releasedMemory *prometheus.Desc
}

var _ prometheus.Collector = (*TotalsCollector)(nil)

func NewTotalsCollector(namespace string, snapshot TotalsSnapshot) *TotalsCollector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}
	return &TotalsCollector{
		snapshot:       snapshot,
		decisions:      desc("decisions_total", "Admission decisions by verdict and the rule that produced them", "verdict", "rule"),
		raceLost:       desc("race_lost_total", "Approvals downgraded because their capacity was gone at booking time"),
		releasedCPU:    desc("released_cpu_total", "CPUs surrendered to the overflow pool", "allocation"),
		releasedGPU:    desc("released_gpu_total", "GPUs surrendered to the overflow pool", "allocation"),
		releasedMemory: desc("released_memory_total", "Memory bytes surrendered to the overflow pool", "allocation"),
	}
}

func (c *TotalsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.decisions
	ch <- c.raceLost
	ch <- c.releasedCPU
	ch <- c.releasedGPU
	ch <- c.releasedMemory
}

func (c *TotalsCollector) Collect(ch chan<- prometheus.Metric) {
	totals, err := c.snapshot()
	if err != nil {
		klog.ErrorS(err, "Reading admission totals failed")
		ch <- prometheus.NewInvalidMetric(c.decisions, err)
		return
	}
	for verdict, rules := range totals.Decisions {
		for rule, n := range rules {
			ch <- prometheus.MustNewConstMetric(c.decisions, prometheus.CounterValue, float64(n), verdict, rule)
		}
	}
	ch <- prometheus.MustNewConstMetric(c.raceLost, prometheus.CounterValue, float64(totals.RaceLost))
	for id, b := range totals.Released {
		ch <- prometheus.MustNewConstMetric(c.releasedCPU, prometheus.CounterValue, float64(b.CPU), id)
		ch <- prometheus.MustNewConstMetric(c.releasedGPU, prometheus.CounterValue, float64(b.GPU), id)
		ch <- prometheus.MustNewConstMetric(c.releasedMemory, prometheus.CounterValue, float64(b.Memory), id)
	}
}
