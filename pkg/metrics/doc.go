/*
Package metrics provides Prometheus metrics collection and exposition for the
engine.

Metrics are registered at package init against the default Prometheus
registry and exposed via Handler() for mounting on an HTTP mux (see
internal/health).

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - MustRegister at package init             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Metric Categories                 │          │
	│  │                                              │          │
	│  │  Table/row: TablesTotal, RowsTotal          │          │
	│  │  Executor:  RowsScannedTotal, IndexSeeksTotal│          │
	│  │  Tx:        TxCommitsTotal, TxCommitDuration │          │
	│  │  Energy:    EnergyQuantaUsed,                │          │
	│  │             HostExecutionMicros              │          │
	│  │  Commitlog: SegmentBytes, AppendsTotal,      │          │
	│  │             SegmentRotationsTotal            │          │
	│  │  Subscr.:   SubscriptionsActive,              │          │
	│  │             SubscriberQueueDepth,             │          │
	│  │             QueryUpdateCompressedTotal        │          │
	│  └────────────────────────────────────────────┘           │
	└──────────────────────────────────────────────────────────┘

Collector polls a StatsSource every 15 seconds to refresh the gauges that
aren't updated inline by the hot path (table/row counts, segment size);
datastore.Datastore provides TableRowCounts, but no type in this module
provides SegmentBytes, so nothing here constructs a Collector. Counters and
histograms on the hot path are updated directly: rows scanned and index
seeks by internal/query, commit counts, commit duration and energy by
internal/engine.

The /health, /ready, and /live HTTP endpoints are served by internal/health,
which also exposes this package's Handler() on /metrics. SetVersion records
the running binary's version on the BuildInfo gauge, the usual Prometheus
way of surfacing a value that never changes at runtime.
*/
package metrics
