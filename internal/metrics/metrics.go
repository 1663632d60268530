package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Evaluation latency buckets in seconds
var evaluationBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005,
	0.01, 0.025, 0.05, 0.1,
	0.25, 0.5, 1, 3,
}

// Metrics holds the collectors on a private registry. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	verdicts   *prometheus.CounterVec
	promotions prometheus.Counter
	degraded   prometheus.Counter
	evaluation prometheus.Histogram
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		verdicts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "riskgate_verdicts_total",
			Help: "Verdicts issued, by reason",
		}, []string{"reason"}),
		promotions: factory.NewCounter(prometheus.CounterOpts{
			Name: "riskgate_ledger_promotions_total",
			Help: "Clients promoted from failed attempts to the blacklist",
		}),
		degraded: factory.NewCounter(prometheus.CounterOpts{
			Name: "riskgate_storage_degraded_total",
			Help: "Times the ledger switched to in-memory mode after a storage failure",
		}),
		evaluation: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "riskgate_evaluation_seconds",
			Help:    "Time spent evaluating a client",
			Buckets: evaluationBuckets,
		}),
	}
}

// WithRuntime adds the process and Go runtime collectors. Used by the server only.
func (m *Metrics) WithRuntime() *Metrics {
	m.registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Verdict(reason string) {
	if m == nil {
		return
	}
	m.verdicts.WithLabelValues(reason).Inc()
}

func (m *Metrics) Promotion() {
	if m == nil {
		return
	}
	m.promotions.Inc()
}

func (m *Metrics) Degraded() {
	if m == nil {
		return
	}
	m.degraded.Inc()
}

func (m *Metrics) ObserveEvaluation(d time.Duration) {
	if m == nil {
		return
	}
	m.evaluation.Observe(d.Seconds())
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
