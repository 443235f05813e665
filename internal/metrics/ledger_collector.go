package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/klog/v2"

	"github.com/linskybing/faculty-admission/internal/ledger"
	"github.com/linskybing/faculty-admission/internal/resources"
)

// LedgerSnapshot returns the ledger entries to export.
type LedgerSnapshot func() ([]ledger.Entry, error)

// LedgerCollector exports total and available capacity per ledger entry,
// read fresh on every scrape.
type LedgerCollector struct {
	snapshot  LedgerSnapshot
	total     *prometheus.Desc
	available *prometheus.Desc
}

var _ prometheus.Collector = (*LedgerCollector)(nil)

func NewLedgerCollector(namespace string, snapshot LedgerSnapshot) *LedgerCollector {
	labels := []string{"day", "allocation", "resource"}
	return &LedgerCollector{
		snapshot: snapshot,
		total: prometheus.NewDesc(prometheus.BuildFQName(namespace, "ledger", "total"),
			"Total capacity of a ledger entry", labels, nil),
		available: prometheus.NewDesc(prometheus.BuildFQName(namespace, "ledger", "available"),
			"Unreserved capacity of a ledger entry", labels, nil),
	}
}

func (c *LedgerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.total
	ch <- c.available
}

func (c *LedgerCollector) Collect(ch chan<- prometheus.Metric) {
	entries, err := c.snapshot()
	if err != nil {
		klog.ErrorS(err, "Reading ledger snapshot failed")
		ch <- prometheus.NewInvalidMetric(c.total, err)
		return
	}
	for _, e := range entries {
		day, alloc := e.Day.String(), e.AllocationID
		emit(ch, c.total, e.Total, day, alloc)
		emit(ch, c.available, e.Available, day, alloc)
	}
}

func emit(ch chan<- prometheus.Metric, desc *prometheus.Desc, b resources.Bundle, day, alloc string) {
	ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, float64(b.CPU), day, alloc, "cpu")
	ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, float64(b.GPU), day, alloc, "gpu")
	ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, float64(b.Memory), day, alloc, "memory")
}
