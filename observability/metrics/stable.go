package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type StableMetrics struct {
	operations       *prometheus.CounterVec
	liquidations     prometheus.Counter
	healthRejections prometheus.Counter
	oracleFailures   *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
}

var (
	stableOnce     sync.Once
	stableRegistry *StableMetrics
)

func Stable() *StableMetrics {
	stableOnce.Do(func() {
		stableRegistry = &StableMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "stable_operations_total",
				Help: "Count of engine operations by name and outcome.",
			}, []string{"operation", "outcome"}),
			liquidations: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "stable_liquidations_total",
				Help: "Count of successful position liquidations.",
			}),
			healthRejections: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "stable_health_rejections_total",
				Help: "Count of operations rejected because the health factor would break.",
			}),
			oracleFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "stable_oracle_failures_total",
				Help: "Count of price feed reads rejected as invalid or stale, by asset.",
			}, []string{"asset"}),
			requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "stable_request_duration_seconds",
				Help:    "Latency of RPC requests by route.",
				Buckets: prometheus.DefBuckets,
			}, []string{"route"}),
		}
		prometheus.MustRegister(
			stableRegistry.operations,
			stableRegistry.liquidations,
			stableRegistry.healthRejections,
			stableRegistry.oracleFailures,
			stableRegistry.requestDuration,
		)
	})
	return stableRegistry
}

func (m *StableMetrics) ObserveOperation(operation, outcome string) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
}

func (m *StableMetrics) IncLiquidation() {
	if m == nil {
		return
	}
	m.liquidations.Inc()
}

func (m *StableMetrics) IncHealthRejection() {
	if m == nil {
		return
	}
	m.healthRejections.Inc()
}

func (m *StableMetrics) IncOracleFailure(asset string) {
	if m == nil {
		return
	}
	if asset == "" {
		asset = "unknown"
	}
	m.oracleFailures.WithLabelValues(asset).Inc()
}

func (m *StableMetrics) ObserveRequestDuration(route string, seconds float64) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	m.requestDuration.WithLabelValues(route).Observe(seconds)
}
