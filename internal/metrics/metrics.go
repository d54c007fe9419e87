// Package metrics provides Prometheus metrics for the rendition pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Storage backend metrics
	storageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "renditions_storage_operation_duration_seconds",
			Help:    "Storage backend operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	storageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renditions_storage_operations_total",
			Help: "Total storage backend operations",
		},
		[]string{"backend", "operation", "status"},
	)

	storageBytesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renditions_storage_bytes_written_total",
			Help: "Total bytes written to the storage backend",
		},
		[]string{"backend"},
	)

	// Generation metrics
	variantsGeneratedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renditions_variants_generated_total",
			Help: "Total variant generation attempts",
		},
		[]string{"kind", "format", "status"},
	)

	generationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "renditions_generation_duration_seconds",
			Help:    "Time to decode, transform, encode and persist one variant",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"format"},
	)

	// Resolution metrics
	resolveTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renditions_resolve_total",
			Help: "Variant resolutions by outcome (hit, miss, shared, error)",
		},
		[]string{"outcome"},
	)

	// Batch metrics
	batchItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renditions_batch_items_total",
			Help: "Media items processed by batch generation",
		},
		[]string{"status"},
	)

	batchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "renditions_batch_duration_seconds",
			Help:    "Duration of batch generation runs",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)

	processorQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "renditions_processor_queue_depth",
			Help: "Media items waiting in the eager generation queue",
		},
	)

	processorDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "renditions_processor_dropped_total",
			Help: "Media items dropped because the eager queue was full",
		},
	)

	// Reconciliation metrics
	reconcileChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renditions_reconcile_checks_total",
			Help: "Variant existence checks by outcome (present, missing, error)",
		},
		[]string{"outcome"},
	)

	// Event metrics
	eventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renditions_events_published_total",
			Help: "Pipeline events published by type",
		},
		[]string{"type"},
	)

	eventsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renditions_events_dropped_total",
			Help: "Pipeline events dropped for slow subscribers",
		},
		[]string{"type"},
	)

	eventSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "renditions_event_subscribers",
			Help: "Number of active event subscribers",
		},
	)

	// Database metrics
	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "renditions_db_query_duration_seconds",
			Help:    "Catalog query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query"},
	)

	dbConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "renditions_db_connections_open",
			Help: "Number of open database connections",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordStorageOperation records one backend call.
func RecordStorageOperation(backend, operation string, duration time.Duration, success bool) {
	storageOperationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
	storageOperationsTotal.WithLabelValues(backend, operation, status(success)).Inc()
}

// RecordStorageWrite records bytes written by a successful put.
func RecordStorageWrite(backend string, bytes int64) {
	storageBytesWritten.WithLabelValues(backend).Add(float64(bytes))
}

// RecordGeneration records one variant generation attempt.
func RecordGeneration(kind, format string, duration time.Duration, success bool) {
	variantsGeneratedTotal.WithLabelValues(kind, format, status(success)).Inc()
	if success {
		generationDuration.WithLabelValues(format).Observe(duration.Seconds())
	}
}

// RecordResolve records a resolution outcome.
func RecordResolve(outcome string) {
	resolveTotal.WithLabelValues(outcome).Inc()
}

// RecordBatch records a finished batch run.
func RecordBatch(succeeded, failed int, duration time.Duration) {
	batchItemsTotal.WithLabelValues("success").Add(float64(succeeded))
	batchItemsTotal.WithLabelValues("error").Add(float64(failed))
	batchDuration.Observe(duration.Seconds())
}

// SetProcessorQueueDepth sets the eager queue depth.
func SetProcessorQueueDepth(n int) {
	processorQueueDepth.Set(float64(n))
}

// RecordProcessorDrop records a dropped eager job.
func RecordProcessorDrop() {
	processorDroppedTotal.Inc()
}

// RecordReconcileCheck records one existence check.
func RecordReconcileCheck(outcome string) {
	reconcileChecksTotal.WithLabelValues(outcome).Inc()
}

// RecordEventPublished records a published event.
func RecordEventPublished(eventType string) {
	eventsPublishedTotal.WithLabelValues(eventType).Inc()
}

// RecordEventDropped records an event dropped for one subscriber.
func RecordEventDropped(eventType string) {
	eventsDroppedTotal.WithLabelValues(eventType).Inc()
}

// SetEventSubscribers sets the number of active event subscribers.
func SetEventSubscribers(n int) {
	eventSubscribers.Set(float64(n))
}

// RecordDBQuery records a catalog query duration.
func RecordDBQuery(query string, duration time.Duration) {
	dbQueryDuration.WithLabelValues(query).Observe(duration.Seconds())
}

// SetDBConnectionsOpen sets the number of open database connections.
func SetDBConnectionsOpen(count int) {
	dbConnectionsOpen.Set(float64(count))
}
