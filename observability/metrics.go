package observability

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	lendingMetricsOnce sync.Once
	lendingRegistry    *LendingMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record HTTP
// API activity per module and route.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "creditpool",
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total API requests segmented by module and route.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "creditpool",
				Subsystem: "api",
				Name:      "errors_total",
				Help:      "Total API errors segmented by module, route, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "creditpool",
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "creditpool",
				Subsystem: "api",
				Name:      "throttles_total",
				Help:      "Count of API requests rejected due to throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a request. The status code should be the
// HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason. Reasons should be stable strings such as "rate_limit" so dashboards
// and alerts remain consistent.
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// LendingMetrics captures engine operation outcomes and pool balances.
type LendingMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	reserves   *prometheus.GaugeVec
	borrowed   *prometheus.GaugeVec
	fees       *prometheus.GaugeVec
}

// Lending returns the lending engine metrics registry.
func Lending() *LendingMetrics {
	lendingMetricsOnce.Do(func() {
		lendingRegistry = &LendingMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "creditpool",
				Subsystem: "lending",
				Name:      "operations_total",
				Help:      "Count of lending operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "creditpool",
				Subsystem: "lending",
				Name:      "operation_duration_seconds",
				Help:      "Latency of lending operations including settlement.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			reserves: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "creditpool",
				Subsystem: "lending",
				Name:      "pool_reserves",
				Help:      "Total reserves held by each pool.",
			}, []string{"asset"}),
			borrowed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "creditpool",
				Subsystem: "lending",
				Name:      "pool_borrowed",
				Help:      "Outstanding borrowed principal for each pool.",
			}, []string{"asset"}),
			fees: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "creditpool",
				Subsystem: "lending",
				Name:      "pool_protocol_fees",
				Help:      "Accumulated protocol fees awaiting withdrawal for each pool.",
			}, []string{"asset"}),
		}
		prometheus.MustRegister(
			lendingRegistry.operations,
			lendingRegistry.duration,
			lendingRegistry.reserves,
			lendingRegistry.borrowed,
			lendingRegistry.fees,
		)
	})
	return lendingRegistry
}

// ObserveOperation records the outcome and latency of an engine operation.
func (m *LendingMetrics) ObserveOperation(op, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	op = strings.TrimSpace(op)
	if op == "" {
		op = "unknown"
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.duration.WithLabelValues(op).Observe(d.Seconds())
}

// ObservePool publishes the latest balances of a pool.
func (m *LendingMetrics) ObservePool(asset common.Address, reserves, borrowed, fees *uint256.Int) {
	if m == nil {
		return
	}
	label := labelAsset(asset)
	m.reserves.WithLabelValues(label).Set(amountToFloat(reserves))
	m.borrowed.WithLabelValues(label).Set(amountToFloat(borrowed))
	m.fees.WithLabelValues(label).Set(amountToFloat(fees))
}

func labelAsset(asset common.Address) string {
	if asset == (common.Address{}) {
		return "native"
	}
	return strings.ToLower(asset.Hex())
}

func amountToFloat(value *uint256.Int) float64 {
	if value == nil {
		return 0
	}
	return bigToFloat(value.ToBig())
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
