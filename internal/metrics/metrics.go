// Package metrics exposes Prometheus collectors that report task activity.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "genforge"

// Reaper actions reported by TaskReaped.
const (
	ReapRequeued = "requeued"
	ReapFailed   = "failed"
)

// Metrics holds the collectors for task creation, execution and supervision.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry      *prometheus.Registry
	tasksCreated  *prometheus.CounterVec
	tasksFinished *prometheus.CounterVec
	taskDuration  *prometheus.HistogramVec
	tasksReaped   *prometheus.CounterVec
	tasksInFlight prometheus.Gauge
}

// New registers every collector on a fresh registry, alongside the Go runtime
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		tasksCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_created_total",
			Help:      "Tasks accepted by the API.",
		}, []string{"tool_type"}),
		tasksFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_finished_total",
			Help:      "Tasks that reached a terminal state.",
		}, []string{"tool_type", "status"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Wall time from worker pickup to terminal state.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 900},
		}, []string{"tool_type", "status"}),
		tasksReaped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_reaped_total",
			Help:      "Stale pending tasks handled by the reaper.",
		}, []string{"action"}),
		tasksInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks_in_flight",
			Help:      "Tasks currently executing in this process.",
		}),
	}
	reg.MustRegister(
		m.tasksCreated,
		m.tasksFinished,
		m.taskDuration,
		m.tasksReaped,
		m.tasksInFlight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) TaskCreated(toolType string) {
	if m == nil {
		return
	}
	m.tasksCreated.WithLabelValues(toolType).Inc()
}

// TaskFinished records a terminal state and the time the worker spent on it.
func (m *Metrics) TaskFinished(toolType, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.tasksFinished.WithLabelValues(toolType, status).Inc()
	m.taskDuration.WithLabelValues(toolType, status).Observe(elapsed.Seconds())
}

// TaskReaped counts a reaper decision; action is ReapRequeued or ReapFailed.
func (m *Metrics) TaskReaped(action string) {
	if m == nil {
		return
	}
	m.tasksReaped.WithLabelValues(action).Inc()
}

func (m *Metrics) IncInFlight() {
	if m == nil {
		return
	}
	m.tasksInFlight.Inc()
}

func (m *Metrics) DecInFlight() {
	if m == nil {
		return
	}
	m.tasksInFlight.Dec()
}
