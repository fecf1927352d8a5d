package timeoff

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics receives engine instrumentation.
type Metrics interface {
	// RecordOperation records one engine operation by kind and result
	// (success, noop, conflict, not_found, inconsistent, error).
	RecordOperation(op, result string, duration time.Duration)

	// RecordRegeneratedEntries records generated ledger entries written by
	// one operation.
	RecordRegeneratedEntries(op string, count int)
}

// =============================================================================
// NOP
// =============================================================================

// NopMetrics discards everything. It is the engine default.
type NopMetrics struct{}

var _ Metrics = NopMetrics{}

func (NopMetrics) RecordOperation(_ /* op */, _ /* result */ string, _ time.Duration) {}
func (NopMetrics) RecordRegeneratedEntries(_ /* op */ string, _ /* count */ int) {}

// =============================================================================
// PROMETHEUS
// =============================================================================

// PrometheusMetrics implements Metrics with Prometheus collectors. They are
// registered on first use.
type PrometheusMetrics struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	operations  *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	regenerated *prometheus.CounterVec
}

var _ Metrics = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics creates a collector. A nil registerer means
// prometheus.DefaultRegisterer; an empty namespace means "employment".
func NewPrometheusMetrics(reg prometheus.Registerer, namespace string) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "employment"
	}
	return &PrometheusMetrics{reg: reg, namespace: namespace}
}

func (p *PrometheusMetrics) ensureRegistered() {
	p.once.Do(func() {
		p.operations = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "engine",
			Name:      "operations_total",
			Help:      "Engine operations by kind and result.",
		}, []string{"op", "result"})

		p.duration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "engine",
			Name:      "operation_duration_seconds",
			Help:      "Latency of engine operations in seconds, lock wait included.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms .. ~2s
		}, []string{"op"})

		p.regenerated = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "ledger",
			Name:      "regenerated_entries_total",
			Help:      "Generated ledger entries written during recomputation.",
		}, []string{"op"})

		p.reg.MustRegister(p.operations, p.duration, p.regenerated)
	})
}

func (p *PrometheusMetrics) RecordOperation(op, result string, duration time.Duration) {
	p.ensureRegistered()
	p.operations.WithLabelValues(op, result).Inc()
	p.duration.WithLabelValues(op).Observe(duration.Seconds())
}

func (p *PrometheusMetrics) RecordRegeneratedEntries(op string, count int) {
	if count <= 0 {
		return
	}
	p.ensureRegistered()
	p.regenerated.WithLabelValues(op).Add(float64(count))
}
