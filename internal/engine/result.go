package engine

import "github.com/cuemby/spacetime/internal/protocol"

// ReducerCallResult is what Engine.CallReducer returns to its caller (the
// wsserver.Handler dispatch in handler.go, or a future non-WebSocket
// entrypoint): everything needed to build the TransactionUpdate sent back
// to whoever invoked the reducer, independent of how it was invoked.
// EnergyQuantaUsed/HostExecutionDurationMicros are the supplemented
// energy-accounting surface spec.md §6 names but the distillation leaves
// for the (out-of-scope) reducer host to populate; see SPEC_FULL.md §12.
type ReducerCallResult struct {
	ReducerName                 string
	ReducerID                   uint32
	RequestID                   uint32
	Output                      string
	Status                      protocol.UpdateStatusKind
	FailureMessage               string
	EnergyQuantaUsed             uint64
	HostExecutionDurationMicros uint64
}
