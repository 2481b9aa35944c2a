// Package engine is the coordinator that wires internal/datastore,
// internal/commitlog, internal/subscription, internal/protocol,
// internal/rls, and internal/query into one running database: it is what
// cmd/spacetime's serve command constructs and hands to internal/wsserver.
//
//	Engine
//	  ├─ datastore.Datastore      committed rows + sequences
//	  ├─ commitlog.Commitlog      durability for every CallReducer
//	  ├─ subscription.Manager     per-connection query state + diffing
//	  ├─ protocol.Registry        identity/token minting
//	  ├─ rls.RuleProvider         view-expansion rules
//	  └─ engine.ReducerRegistry   Go-native stand-in for the WASM host
//
// Grounded on the teacher's pkg/manager.Manager: a single coordinator type
// owning a store, an FSM-like apply path, and a broker, reused here as the
// shape for a type owning a datastore, a commit log, and a subscription
// manager instead. The reducer sandbox itself (spec.md §1's "WebAssembly
// host" non-goal) is a named external collaborator; ReducerRegistry is
// this port's in-process contract for it, not a re-implementation of a
// WASM runtime.
package engine
