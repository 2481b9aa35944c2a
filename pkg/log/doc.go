/*
Package log provides structured logging for the engine using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper
functions for the contextual fields the engine attaches most often: table
name, transaction offset, connection id, and subscription query id.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - zerolog.Logger, set via log.Init()       │          │
	│  │  - safe for concurrent use                  │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error              │          │
	│  │  - JSONOutput: JSON or console (human)       │          │
	│  │  - Output: io.Writer                         │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("datastore"|"commitlog"|…) │          │
	│  │  - WithTable("st_tables")                   │          │
	│  │  - WithTxOffset(12345)                      │          │
	│  │  - WithConnection("c-abc123")                │          │
	│  │  - WithQueryID(7)                            │          │
	│  └────────────────────────────────────────────┘           │
	└──────────────────────────────────────────────────────────┘

# Levels

Debug: fine-grained page/index internals, visitor program traces.
Info: transaction commits, segment rotation, subscription lifecycle events.
Warn: sequence pre-allocation exhaustion approaching, slow subscriber queue.
Error: failed commits, checksum mismatches, protocol violations.
Fatal: unrecoverable startup failure (corrupt, non-tail commit log entry).

# Usage

	import "github.com/cuemby/spacetime/pkg/log"

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: os.Stdout})

	logger := log.WithComponent("commitlog")
	logger.Info().Uint64("tx_offset", offset).Msg("segment rotated")
*/
package log
