package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of one factorlab process.
// Every method is safe on a nil receiver so callers can run without metrics.
type Metrics struct {
	registry *prometheus.Registry

	TasksTotal    *prometheus.CounterVec
	TaskDuration  *prometheus.HistogramVec
	RowsWritten   *prometheus.CounterVec
	WritesSkipped *prometheus.CounterVec
	HTTPRequests  *prometheus.CounterVec
}

// New creates a Metrics instance backed by its own registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		TasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "factorlab_tasks_total",
				Help: "Pool tasks finished by pool and status",
			},
			[]string{"pool", "status"},
		),

		TaskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "factorlab_task_duration_seconds",
				Help:    "Duration of pool tasks in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
			},
			[]string{"pool"},
		),

		RowsWritten: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "factorlab_rows_written_total",
				Help: "Rows appended to store tables",
			},
			[]string{"table"},
		),

		WritesSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "factorlab_writes_skipped_total",
				Help: "Writes skipped because the continuity check failed",
			},
			[]string{"table"},
		),

		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "factorlab_http_requests_total",
				Help: "API requests by route and status code",
			},
			[]string{"route", "code"},
		),
	}

	m.registry.MustRegister(
		m.TasksTotal,
		m.TaskDuration,
		m.RowsWritten,
		m.WritesSkipped,
		m.HTTPRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// ObserveTask records one finished pool task
func (m *Metrics) ObserveTask(pool string, err error, d time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failed"
	}
	m.TasksTotal.WithLabelValues(pool, status).Inc()
	m.TaskDuration.WithLabelValues(pool).Observe(d.Seconds())
}

// AddRows counts rows appended to table
func (m *Metrics) AddRows(table string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RowsWritten.WithLabelValues(table).Add(float64(n))
}

// SkipWrite counts a write refused by the continuity check
func (m *Metrics) SkipWrite(table string) {
	if m == nil {
		return
	}
	m.WritesSkipped.WithLabelValues(table).Inc()
}

// ObserveRequest counts one API request
func (m *Metrics) ObserveRequest(route, code string) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, code).Inc()
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
