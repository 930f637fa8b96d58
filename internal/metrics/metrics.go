// Package metrics exposes Prometheus instruments for the engine. The engine
// is embedded, so nothing here serves HTTP; instruments register on the
// default registry and the host process decides whether to expose them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsTotal counts engine operations by name and outcome.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledgerd",
			Name:      "operations_total",
			Help:      "Total number of engine operations",
		},
		[]string{"op", "status"},
	)
	// WALAppendsTotal counts committed WAL batches.
	WALAppendsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ledgerd",
			Name:      "wal_appends_total",
			Help:      "Total number of WAL batch appends",
		},
	)
	// WALSegmentBytes tracks the size of the current WAL segment.
	WALSegmentBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ledgerd",
			Name:      "wal_segment_bytes",
			Help:      "Size of the current WAL segment in bytes",
		},
	)
	// SnapshotsTotal counts completed snapshots.
	SnapshotsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ledgerd",
			Name:      "snapshots_total",
			Help:      "Total number of snapshots taken",
		},
	)
	// SnapshotDuration observes how long a snapshot takes end to end.
	SnapshotDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ledgerd",
			Name:      "snapshot_duration_seconds",
			Help:      "Duration of snapshot creation in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

// ObserveOp records one engine operation outcome.
func ObserveOp(op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	OperationsTotal.WithLabelValues(op, status).Inc()
}
