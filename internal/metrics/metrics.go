package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wonny/quantsnap/internal/contracts"
)

const namespace = "quant"

// Run outcomes used as the status label
const (
	RunDone    = "done"
	RunSkipped = "skipped"
	RunFailed  = "failed"
)

// Source attempt results used as the result label
const (
	AttemptSuccess     = "success"
	AttemptError       = "error"
	AttemptNoData      = "no_data"
	AttemptRateLimited = "rate_limited"
	AttemptCacheHit    = "cache_hit"
)

// Metrics holds the pipeline's Prometheus collectors on a private registry.
// A nil *Metrics is valid and records nothing.
// ⭐ SSOT: 메트릭 정의는 여기서만
type Metrics struct {
	registry *prometheus.Registry

	runsTotal        *prometheus.CounterVec
	symbolsTotal     *prometheus.CounterVec
	sourceAttempts   *prometheus.CounterVec
	runDuration      prometheus.Histogram
	recommendations  prometheus.Gauge
	lastSuccessEpoch prometheus.Gauge
}

// New registers every collector on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by final status.",
		}, []string{"status"}),
		symbolsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "symbols_total",
			Help:      "Symbols processed by fetch status.",
		}, []string{"status"}),
		sourceAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_attempts_total",
			Help:      "Market data requests by source and result.",
		}, []string{"source", "result"}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of pipeline runs.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		recommendations: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "recommendations",
			Help:      "Recommendations in the last completed run.",
		}),
		lastSuccessEpoch: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run that persisted a snapshot.",
		}),
	}
}

// Registry exposes the registry for custom handlers
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRun records a finished run. result may be nil for runs that failed
// before a result existed.
func (m *Metrics) ObserveRun(result *contracts.RunResult, status string, duration time.Duration) {
	if m == nil {
		return
	}

	m.runsTotal.WithLabelValues(status).Inc()
	m.runDuration.Observe(duration.Seconds())

	if result == nil {
		return
	}
	for s, n := range result.StatusCounts() {
		m.symbolsTotal.WithLabelValues(string(s)).Add(float64(n))
	}
	if status == RunDone {
		m.recommendations.Set(float64(len(result.Recommendations)))
		m.lastSuccessEpoch.Set(float64(result.FinishedAt.Unix()))
	}
}

// ObserveSourceAttempt records one market data request
func (m *Metrics) ObserveSourceAttempt(source, result string) {
	if m == nil {
		return
	}
	m.sourceAttempts.WithLabelValues(source, result).Inc()
}
