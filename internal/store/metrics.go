package store

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics.
var (
	storeOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "productos_store_operations_total",
			Help: "Total number of product store operations",
		},
		[]string{"operation", "result"},
	)

	storeOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "productos_store_operation_duration_seconds",
			Help:    "Product store operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	storedProducts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "productos_store_products",
			Help: "Number of products seen by the last successful load or save",
		},
	)
)

// observe records the outcome and latency of a store operation.
func observe(operation string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}

	storeOperationsTotal.WithLabelValues(operation, result).Inc()
	storeOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
