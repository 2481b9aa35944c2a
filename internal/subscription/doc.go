// Package subscription implements the per-connection query state machine,
// initial-snapshot evaluation, and incremental diff routing spec.md §4.9
// describes: Pending -> Sent -> Applied -> (Ended|Error), with a Cancelled
// pseudo-state reached from Pending.
//
// Grounded on the teacher's pkg/events broker (a map of subscribers behind
// a RWMutex, each with its own buffered channel) for the connection/queue
// shape, and on original_source/sdks/rust/src/subscription.rs and
// client_cache.rs for the state machine transitions and the
// evaluate-against-committed-then-diff-against-delta evaluation split this
// package performs using internal/query's CommittedSource/DeltaSource.
package subscription
