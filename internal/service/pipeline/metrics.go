package pipeline

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var runBuckets = []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300}

// Metrics records pipeline outcomes. A nil *Metrics is a no-op.
type Metrics struct {
	runsTotal       *prometheus.CounterVec
	runDuration     prometheus.Histogram
	strategyTotal   *prometheus.CounterVec
	strategyLatency *prometheus.HistogramVec
	modifications   *prometheus.CounterVec
	swept           prometheus.Counter
}

// NewMetrics registers the pipeline collectors with reg, reusing collectors
// that are already registered. A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sitepress",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Completed pipeline runs by outcome",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sitepress",
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Wall time of pipeline runs",
			Buckets:   runBuckets,
		}),
		strategyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sitepress",
			Subsystem: "deploy",
			Name:      "strategy_attempts_total",
			Help:      "Deployment strategy attempts by result",
		}, []string{"strategy", "result"}),
		strategyLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sitepress",
			Subsystem: "deploy",
			Name:      "strategy_duration_seconds",
			Help:      "Latency of deployment strategy attempts",
			Buckets:   runBuckets,
		}, []string{"strategy"}),
		modifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sitepress",
			Subsystem: "pipeline",
			Name:      "modifications_total",
			Help:      "Modification requests by source",
		}, []string{"source"}),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sitepress",
			Subsystem: "pipeline",
			Name:      "stale_runs_swept_total",
			Help:      "Records moved to error after processing too long",
		}),
	}

	m.runsTotal = register(reg, m.runsTotal)
	m.runDuration = register(reg, m.runDuration)
	m.strategyTotal = register(reg, m.strategyTotal)
	m.strategyLatency = register(reg, m.strategyLatency)
	m.modifications = register(reg, m.modifications)
	m.swept = register(reg, m.swept)
	return m
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return c
}

func (m *Metrics) observeRun(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(outcome).Inc()
	m.runDuration.Observe(elapsed.Seconds())
}

// ObserveStrategy matches deploy.Observer.
func (m *Metrics) ObserveStrategy(strategy string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.strategyTotal.WithLabelValues(strategy, result).Inc()
	m.strategyLatency.WithLabelValues(strategy).Observe(elapsed.Seconds())
}

func (m *Metrics) observeModification(source string) {
	if m == nil {
		return
	}
	m.modifications.WithLabelValues(source).Inc()
}

func (m *Metrics) observeSweep() {
	if m == nil {
		return
	}
	m.swept.Inc()
}
