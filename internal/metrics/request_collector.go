package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/klog/v2"

	"github.com/linskybing/faculty-admission/internal/decision"
	"github.com/linskybing/faculty-admission/internal/request"
)

// RequestSnapshot returns the stored requests to export.
type RequestSnapshot func() ([]request.Request, error)

// RequestCollector exports how many stored requests each allocation has per
// status.
type RequestCollector struct {
	snapshot RequestSnapshot
	requests *prometheus.Desc
}

var _ prometheus.Collector = (*RequestCollector)(nil)

func NewRequestCollector(namespace string, snapshot RequestSnapshot) *RequestCollector {
	return &RequestCollector{
		snapshot: snapshot,
		requests: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "requests"),
			"Stored requests by allocation and status", []string{"allocation", "status"}, nil),
	}
}

func (c *RequestCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.requests
}

func (c *RequestCollector) Collect(ch chan<- prometheus.Metric) {
	requests, err := c.snapshot()
	if err != nil {
		klog.ErrorS(err, "Reading request snapshot failed")
		ch <- prometheus.NewInvalidMetric(c.requests, err)
		return
	}
	type key struct {
		allocation string
		status     decision.Verdict
	}
	counts := make(map[key]int)
	for _, r := range requests {
		counts[key{r.AllocationID, r.Status}]++
	}
	for k, n := range counts {
		ch <- prometheus.MustNewConstMetric(c.requests, prometheus.GaugeValue, float64(n), k.allocation, k.status.String())
	}
}
