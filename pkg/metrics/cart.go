package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// CartMetrics records cart operation latency and outcomes.
type CartMetrics struct {
	duration    *prometheus.HistogramVec
	operations  *prometheus.CounterVec
	mergedItems prometheus.Counter
}

// NewCartMetrics registers the cart metrics on the provided registerer.
func NewCartMetrics(reg prometheus.Registerer) *CartMetrics {
	if reg == nil {
		return &CartMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cart_operation_duration_seconds",
		Help:    "Duration of cart operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_operations_total",
		Help: "Cart operations by outcome.",
	}, []string{"operation", "outcome"})
	mergedItems := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cart_merged_items_total",
		Help: "Guest cart lines applied to remote carts during login merges.",
	})
	reg.MustRegister(duration, operations, mergedItems)
	return &CartMetrics{
		duration:    duration,
		operations:  operations,
		mergedItems: mergedItems,
	}
}

// Observe records duration and outcome for the named operation.
func (c *CartMetrics) Observe(operation string, started time.Time, err error) {
	if c == nil || c.duration == nil {
		return
	}
	op := normalizeLabel(operation)
	c.duration.WithLabelValues(op).Observe(time.Since(started).Seconds())
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	c.operations.WithLabelValues(op, outcome).Inc()
}

// AddMergedItems counts lines that a merge actually applied.
func (c *CartMetrics) AddMergedItems(n int) {
	if c == nil || c.mergedItems == nil || n <= 0 {
		return
	}
	c.mergedItems.Add(float64(n))
}

func normalizeLabel(op string) string {
	if op == "" {
		return "unknown"
	}
	return op
}
