package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the process-wide collector. It is nil until InitMetrics runs.
var Metrics *Collector

var metricsMu sync.Mutex

// Collector records API client and polling metrics in its own registry.
type Collector struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	duration *prometheus.SummaryVec
	polls    *prometheus.CounterVec
	exports  *prometheus.CounterVec
}

// NewCollector creates a collector with a fresh registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "casegen_api_requests_total",
				Help: "Total number of API requests by route and status",
			},
			[]string{"method", "route", "status_code"},
		),
		duration: factory.NewSummaryVec(
			prometheus.SummaryOpts{
				Name: "casegen_api_request_duration_seconds",
				Help: "API request duration in seconds",
				Objectives: map[float64]float64{
					0.5:  0.05,
					0.9:  0.01,
					0.99: 0.001,
				},
			},
			[]string{"method", "route"},
		),
		polls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "casegen_poll_attempts_total",
				Help: "Total number of job status fetches by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		exports: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "casegen_exports_total",
				Help: "Total number of saved exports by sink type",
			},
			[]string{"sink"},
		),
	}
}

// InitMetrics sets Metrics to a new collector unless one exists.
func InitMetrics() *Collector {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	if Metrics == nil {
		Metrics = NewCollector()
	}
	return Metrics
}

// ObserveRequest implements transport.Observer. A zero status is recorded as
// "network".
func (c *Collector) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	code := "network"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	c.requests.WithLabelValues(method, route, code).Inc()
	c.duration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObservePoll records one status fetch of a job or mind map.
func (c *Collector) ObservePoll(kind string, terminal bool, err error) {
	outcome := "pending"
	switch {
	case err != nil:
		outcome = "error"
	case terminal:
		outcome = "terminal"
	}
	c.polls.WithLabelValues(kind, outcome).Inc()
}

// ObserveExport records a saved export.
func (c *Collector) ObserveExport(sink string) {
	c.exports.WithLabelValues(sink).Inc()
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
