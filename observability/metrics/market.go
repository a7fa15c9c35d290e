package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MarketMetrics tracks ledger calls and value flows.
type MarketMetrics struct {
	calls       *prometheus.CounterVec
	callLatency *prometheus.HistogramVec
	settled     prometheus.Counter
	withdrawn   prometheus.Counter
	tick        prometheus.Gauge
	providers   prometheus.Gauge
}

var (
	marketOnce     sync.Once
	marketRegistry *MarketMetrics
)

// Market returns the lazily registered market metrics.
func Market() *MarketMetrics {
	marketOnce.Do(func() {
		marketRegistry = &MarketMetrics{
			calls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "subledger",
				Subsystem: "market",
				Name:      "calls_total",
				Help:      "Ledger calls segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			callLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "subledger",
				Subsystem: "market",
				Name:      "call_duration_seconds",
				Help:      "Latency of ledger calls including commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			settled: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "subledger",
				Subsystem: "market",
				Name:      "settled_events_total",
				Help:      "Number of settlements moving value from subscribers to providers.",
			}),
			withdrawn: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "subledger",
				Subsystem: "market",
				Name:      "withdrawals_total",
				Help:      "Number of provider payouts.",
			}),
			tick: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "subledger",
				Subsystem: "market",
				Name:      "tick",
				Help:      "Current ledger tick.",
			}),
			providers: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "subledger",
				Subsystem: "market",
				Name:      "providers",
				Help:      "Registered providers.",
			}),
		}
		prometheus.MustRegister(
			marketRegistry.calls,
			marketRegistry.callLatency,
			marketRegistry.settled,
			marketRegistry.withdrawn,
			marketRegistry.tick,
			marketRegistry.providers,
		)
	})
	return marketRegistry
}

// ObserveCall records the outcome and duration of a ledger call.
func (m *MarketMetrics) ObserveCall(operation string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.calls.WithLabelValues(operation, outcome).Inc()
	m.callLatency.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// ObserveSettlement counts a settlement.
func (m *MarketMetrics) ObserveSettlement() {
	if m == nil {
		return
	}
	m.settled.Inc()
}

// ObserveWithdrawal counts a provider payout.
func (m *MarketMetrics) ObserveWithdrawal() {
	if m == nil {
		return
	}
	m.withdrawn.Inc()
}

// SetTick publishes the current tick.
func (m *MarketMetrics) SetTick(tick uint64) {
	if m == nil {
		return
	}
	m.tick.Set(float64(tick))
}

// SetProviders publishes the provider count.
func (m *MarketMetrics) SetProviders(count uint64) {
	if m == nil {
		return
	}
	m.providers.Set(float64(count))
}
