// Package monitoring exposes Prometheus metrics for the CRDT composition
// layers (collection, cluster, network). The core internal/crdt package
// stays instrumentation-free.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Registry *prometheus.Registry

	OpsApplied        prometheus.Counter
	MergesPerformed   prometheus.Counter
	MergeDuration     prometheus.Histogram
	EntriesPruned     prometheus.Counter
	DeferredQueueSize prometheus.Gauge
	SnapshotWriteOps  prometheus.Counter
	ActiveConnections prometheus.Gauge
	SyncLatency       prometheus.Histogram
	ErrorCount        prometheus.Counter
}

// NewMetrics registers every metric on a fresh registry owned by the
// returned Metrics. Each DB instance carries its own registry, so two
// instances in one process (common in tests) never collide on metric
// names the way global-registry registration would.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		Registry: registry,
		OpsApplied: factory.NewCounter(prometheus.CounterOpts{
			Name: "mapcrdt_ops_applied_total",
			Help: "Total number of CRDT operations applied locally",
		}),
		MergesPerformed: factory.NewCounter(prometheus.CounterOpts{
			Name: "mapcrdt_merges_total",
			Help: "Total number of state-based merges performed",
		}),
		MergeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mapcrdt_merge_duration_seconds",
			Help:    "Time taken to merge a remote Map snapshot",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		}),
		EntriesPruned: factory.NewCounter(prometheus.CounterOpts{
			Name: "mapcrdt_entries_pruned_total",
			Help: "Total number of entries dropped by a Truncate projection",
		}),
		DeferredQueueSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mapcrdt_deferred_queue_size",
			Help: "Current number of deferred removes awaiting their causal prerequisites",
		}),
		SnapshotWriteOps: factory.NewCounter(prometheus.CounterOpts{
			Name: "mapcrdt_snapshot_writes_total",
			Help: "Total number of collection snapshots persisted to storage",
		}),
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mapcrdt_active_connections",
			Help: "Number of active peer connections",
		}),
		SyncLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mapcrdt_sync_latency_seconds",
			Help:    "Latency of a full sync round-trip with a peer",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		}),
		ErrorCount: factory.NewCounter(prometheus.CounterOpts{
			Name: "mapcrdt_errors_total",
			Help: "Total number of errors encountered in the composition layers",
		}),
	}
}
