package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Table / row-store metrics
	TablesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "spacetime_tables_total",
			Help: "Total number of tables in the committed catalog",
		},
	)

	RowsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "spacetime_rows_total",
			Help: "Total number of rows per table in committed state",
		},
		[]string{"table"},
	)

	// Query executor metrics (spec.md §4.6)
	RowsScannedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spacetime_rows_scanned_total",
			Help: "Total number of tuples pushed through a physical operator",
		},
		[]string{"table", "op"},
	)

	IndexSeeksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spacetime_index_seeks_total",
			Help: "Total number of index probes performed by IxScan/IxJoin operators",
		},
		[]string{"table", "index"},
	)

	// Transaction / datastore metrics
	TxCommitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "spacetime_tx_commits_total",
			Help: "Total number of committed mutable transactions",
		},
	)

	TxRollbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "spacetime_tx_rollbacks_total",
			Help: "Total number of rolled-back mutable transactions",
		},
	)

	TxCommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "spacetime_tx_commit_duration_seconds",
			Help:    "Time taken to merge a TxState into CommittedState and append to the commit log",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Reducer energy accounting (spec.md §6, §12)
	EnergyQuantaUsed = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "spacetime_energy_quanta_used",
			Help:    "Energy quanta consumed per reducer call",
			Buckets: []float64{1, 10, 100, 1000, 10000, 100000, 1000000},
		},
	)

	HostExecutionMicros = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "spacetime_host_execution_duration_micros",
			Help:    "Reducer host execution duration in microseconds",
			Buckets: []float64{10, 100, 1000, 10000, 100000, 1000000},
		},
	)

	// Commit log metrics
	CommitlogSegmentBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "spacetime_commitlog_segment_bytes",
			Help: "Size in bytes of the commit log's currently-open segment",
		},
	)

	CommitlogAppendsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "spacetime_commitlog_appends_total",
			Help: "Total number of commits flushed to the commit log",
		},
	)

	CommitlogSegmentRotationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "spacetime_commitlog_segment_rotations_total",
			Help: "Total number of commit log segment rotations",
		},
	)

	// Subscription engine metrics
	SubscriptionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "spacetime_subscriptions_active",
			Help: "Number of currently open subscriber WebSocket connections",
		},
	)

	SubscriberQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "spacetime_subscriber_queue_depth",
			Help: "Current depth of a per-connection outbound message queue",
		},
		[]string{"connection"},
	)

	SubscriberDisconnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spacetime_subscriber_disconnects_total",
			Help: "Total number of connections torn down, by reason",
		},
		[]string{"reason"},
	)

	QueryUpdateCompressedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "spacetime_query_update_compressed_total",
			Help: "Total number of QueryUpdate bodies sent Brotli-compressed",
		},
	)

	// BuildInfo reports the running binary's version as a label, the usual
	// Prometheus way of exposing a value that never changes at runtime
	// (always set to 1, only the label carries information).
	BuildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "spacetime_build_info",
			Help: "Build information, value is always 1",
		},
		[]string{"version"},
	)
)

func init() {
	prometheus.MustRegister(TablesTotal)
	prometheus.MustRegister(RowsTotal)
	prometheus.MustRegister(RowsScannedTotal)
	prometheus.MustRegister(IndexSeeksTotal)
	prometheus.MustRegister(TxCommitsTotal)
	prometheus.MustRegister(TxRollbacksTotal)
	prometheus.MustRegister(TxCommitDuration)
	prometheus.MustRegister(EnergyQuantaUsed)
	prometheus.MustRegister(HostExecutionMicros)
	prometheus.MustRegister(CommitlogSegmentBytes)
	prometheus.MustRegister(CommitlogAppendsTotal)
	prometheus.MustRegister(CommitlogSegmentRotationsTotal)
	prometheus.MustRegister(SubscriptionsActive)
	prometheus.MustRegister(SubscriberQueueDepth)
	prometheus.MustRegister(SubscriberDisconnectsTotal)
	prometheus.MustRegister(QueryUpdateCompressedTotal)
	prometheus.MustRegister(BuildInfo)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetVersion records the running binary's version on the BuildInfo gauge.
func SetVersion(version string) {
	BuildInfo.Reset()
	BuildInfo.WithLabelValues(version).Set(1)
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
