// Package metrics exposes the engine's Prometheus surface: counters for
// WAL activity and SSI/FCW conflict outcomes, gauges for GC horizon and
// active-transaction count.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	WALAppends = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fsqlite",
		Subsystem: "wal",
		Name:      "appends_total",
		Help:      "Number of frames appended to the write-ahead log.",
	})

	WALBytesWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fsqlite",
		Subsystem: "wal",
		Name:      "bytes_written_total",
		Help:      "Bytes written to the write-ahead log, including FEC parity.",
	})

	WALCheckpoints = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fsqlite",
		Subsystem: "wal",
		Name:      "checkpoints_total",
		Help:      "Number of WAL checkpoint runs.",
	})

	WALArchivedFrames = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fsqlite",
		Subsystem: "wal",
		Name:      "archived_frames_total",
		Help:      "Frames compressed into segment archives at checkpoint.",
	})

	GCHorizon = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fsqlite",
		Subsystem: "mvcc",
		Name:      "gc_horizon",
		Help:      "Oldest TxnId that may still observe a reclaimable version.",
	})

	ActiveTxns = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fsqlite",
		Subsystem: "mvcc",
		Name:      "active_transactions",
		Help:      "Number of currently in-flight transactions.",
	})

	SSIAborts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fsqlite",
		Subsystem: "mvcc",
		Name:      "ssi_aborts_total",
		Help:      "Transactions aborted by the SSI rw-antidependency check.",
	})

	FCWConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fsqlite",
		Subsystem: "mvcc",
		Name:      "fcw_conflicts_total",
		Help:      "First-committer-wins conflicts detected at commit time.",
	})

	MergeLadderResolutions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fsqlite",
		Subsystem: "mvcc",
		Name:      "merge_ladder_resolutions_total",
		Help:      "Conflicts resolved by each merge-ladder strategy.",
	}, []string{"strategy"})
)

// Registry is a dedicated prometheus.Registry (rather than the global
// default) so embedding applications can mount it under any HTTP path
// without colliding with their own metric names.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		WALAppends,
		WALBytesWritten,
		WALCheckpoints,
		WALArchivedFrames,
		GCHorizon,
		ActiveTxns,
		SSIAborts,
		FCWConflicts,
		MergeLadderResolutions,
	)
}
