package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/linskybing/faculty-admission/internal/directory"
)

// AllocationCollector exports the base capacity of every allocation the
// directory currently lists.
type AllocationCollector struct {
	directory directory.Lister
	base      *prometheus.Desc
	overflow  *prometheus.Desc
}

var _ prometheus.Collector = (*AllocationCollector)(nil)

func NewAllocationCollector(namespace string, dir directory.Lister) *AllocationCollector {
	return &AllocationCollector{
		directory: dir,
		base: prometheus.NewDesc(prometheus.BuildFQName(namespace, "allocation", "base_capacity"),
			"Daily base capacity new ledger entries are seeded with", []string{"allocation", "resource"}, nil),
		overflow: prometheus.NewDesc(prometheus.BuildFQName(namespace, "allocation", "overflow_pool"),
			"1 for the allocation designated as the overflow pool", []string{"allocation"}, nil),
	}
}

func (c *AllocationCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.base
	ch <- c.overflow
}

func (c *AllocationCollector) Collect(ch chan<- prometheus.Metric) {
	overflowID := c.directory.OverflowPoolID()
	for _, a := range c.directory.List() {
		ch <- prometheus.MustNewConstMetric(c.base, prometheus.GaugeValue, float64(a.BaseCapacity.CPU), a.ID, "cpu")
		ch <- prometheus.MustNewConstMetric(c.base, prometheus.GaugeValue, float64(a.BaseCapacity.GPU), a.ID, "gpu")
		ch <- prometheus.MustNewConstMetric(c.base, prometheus.GaugeValue, float64(a.BaseCapacity.Memory), a.ID, "memory")
		if a.ID == overflowID {
			ch <- prometheus.MustNewConstMetric(c.overflow, prometheus.GaugeValue, 1, a.ID)
		}
	}
}
