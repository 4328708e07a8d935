// Package observability groups the Prometheus instruments exported by the
// engine.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the engine.
type Metrics struct {
	TasksTotal      *prometheus.CounterVec
	PlansTotal      prometheus.Counter
	ActivePlans     prometheus.Gauge
	CommandDuration prometheus.Histogram
	AuditFailures   prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TasksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Tasks by kind and final status.",
		}, []string{"kind", "status"}),
		PlansTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plans_total",
			Help:      "Plans accepted for execution.",
		}),
		ActivePlans: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_plans",
			Help:      "Plans currently mid-execution (0 or 1).",
		}),
		CommandDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Wall-clock duration of executed commands.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}),
		AuditFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_write_failures_total",
			Help:      "Session recorder persistence failures (degraded audit).",
		}),
	}
}

func (m *Metrics) ObserveCommandDuration(d time.Duration) {
	m.CommandDuration.Observe(d.Seconds())
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
