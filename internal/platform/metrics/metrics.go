package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the engine.
type Metrics struct {
	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	HookFailures      *prometheus.CounterVec
	AfterHookFailures prometheus.Counter
	AfterHookQueue    prometheus.Gauge
}

// New creates and registers all Prometheus metrics on the default registerer.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the metrics on a specific registerer; tests pass their
// own registry to avoid duplicate-registration panics.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "terrane_operations_total",
			Help: "Domain operations by entity, operation, and outcome.",
		}, []string{"entity", "operation", "outcome"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "terrane_operation_duration_seconds",
			Help:    "Full pipeline duration (pre through commit) per operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"entity", "operation"}),
		HookFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "terrane_hook_failures_total",
			Help: "Pre/post hook failures by entity and stage.",
		}, []string{"entity", "stage"}),
		AfterHookFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "terrane_after_hook_failures_total",
			Help: "After-hooks that returned an error (logged, never propagated).",
		}),
		AfterHookQueue: factory.NewGauge(prometheus.GaugeOpts{
			Name: "terrane_after_hook_queue",
			Help: "After-hook tasks queued or running.",
		}),
	}
}
