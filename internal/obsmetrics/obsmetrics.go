// Package obsmetrics exposes the gateway's internal metrics (C2) as
// Prometheus collectors behind a /metrics endpoint, grounded on the
// teacher-adjacent r3e-network-service_layer's infrastructure/metrics
// package for the CounterVec/HistogramVec/GaugeVec shapes and on its
// promhttp.HandlerFor(registry, ...) wiring. Unlike that package's
// static, pre-registered vectors, this package uses a pull-model
// prometheus.Collector that reads internal/metrics.Store on every scrape
// — per-capability cardinality is unknown at startup (capabilities load
// from a manifest), so labels can't be declared up front the way a fixed
// HTTP-route label set can.
package obsmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"

	"github.com/capgate/gateway/internal/metrics"
)

// Collector adapts a metrics.Store into a prometheus.Collector.
type Collector struct {
	store *metrics.Store

	total       *prometheus.Desc
	success     *prometheus.Desc
	failed      *prometheus.Desc
	latencyAvg  *prometheus.Desc
	costSum     *prometheus.Desc
	systemRPM   *prometheus.Desc
	systemTotal *prometheus.Desc
	uptime      *prometheus.Desc
}

// NewCollector builds a Collector reading from store.
func NewCollector(store *metrics.Store) *Collector {
	return &Collector{
		store: store,
		total: prometheus.NewDesc(
			"capgate_capability_requests_total", "Total invocations per capability.",
			[]string{"capability_id"}, nil),
		success: prometheus.NewDesc(
			"capgate_capability_success_total", "Successful invocations per capability.",
			[]string{"capability_id"}, nil),
		failed: prometheus.NewDesc(
			"capgate_capability_failed_total", "Failed invocations per capability.",
			[]string{"capability_id"}, nil),
		latencyAvg: prometheus.NewDesc(
			"capgate_capability_latency_avg_ms", "Running average latency per capability, in milliseconds.",
			[]string{"capability_id"}, nil),
		costSum: prometheus.NewDesc(
			"capgate_capability_cost_sum", "Cumulative reported cost per capability.",
			[]string{"capability_id"}, nil),
		systemRPM: prometheus.NewDesc(
			"capgate_requests_per_minute", "Process-wide requests observed in the trailing minute.", nil, nil),
		systemTotal: prometheus.NewDesc(
			"capgate_requests_total", "Process-wide total invocations since startup.", nil, nil),
		uptime: prometheus.NewDesc(
			"capgate_uptime_seconds", "Seconds since the gateway process started.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.total
	ch <- c.success
	ch <- c.failed
	ch <- c.latencyAvg
	ch <- c.costSum
	ch <- c.systemRPM
	ch <- c.systemTotal
	ch <- c.uptime
}

// Collect implements prometheus.Collector, reading a fresh snapshot from
// the store on every scrape.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, cell := range c.store.All() {
		ch <- prometheus.MustNewConstMetric(c.total, prometheus.CounterValue, float64(cell.Total), cell.CapabilityID)
		ch <- prometheus.MustNewConstMetric(c.success, prometheus.CounterValue, float64(cell.Success), cell.CapabilityID)
		ch <- prometheus.MustNewConstMetric(c.failed, prometheus.CounterValue, float64(cell.Failed), cell.CapabilityID)
		ch <- prometheus.MustNewConstMetric(c.latencyAvg, prometheus.GaugeValue, cell.LatencyAvg, cell.CapabilityID)
		ch <- prometheus.MustNewConstMetric(c.costSum, prometheus.CounterValue, cell.CostSum, cell.CapabilityID)
	}

	sys := c.store.System()
	ch <- prometheus.MustNewConstMetric(c.systemRPM, prometheus.GaugeValue, float64(sys.RPM))
	ch <- prometheus.MustNewConstMetric(c.systemTotal, prometheus.CounterValue, float64(sys.Total))
	ch <- prometheus.MustNewConstMetric(c.uptime, prometheus.GaugeValue, float64(sys.UptimeMs)/1000)
}

// Handler builds a dedicated registry holding only this collector and
// returns the promhttp handler for it, mirroring the teacher's
// promhttp.HandlerFor(registry, ...) pattern rather than touching the
// global DefaultRegisterer (so tests can build independent collectors
// without cross-test collector ID collisions).
func Handler(store *metrics.Store) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCollector(store))
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
