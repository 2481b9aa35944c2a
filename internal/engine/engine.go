package engine

import (
	"fmt"
	"time"

	"github.com/cuemby/spacetime/internal/commitlog"
	"github.com/cuemby/spacetime/internal/datastore"
	"github.com/cuemby/spacetime/internal/protocol"
	"github.com/cuemby/spacetime/internal/rls"
	"github.com/cuemby/spacetime/internal/subscription"
	"github.com/cuemby/spacetime/pkg/log"
	"github.com/cuemby/spacetime/pkg/metrics"
)

// Disconnector tears down a connection whose outbound queue overflowed
// (spec.md §5's backpressure policy). internal/wsserver.Server implements
// this; kept as a narrow interface here so this package doesn't need to
// import wsserver just to call one method back on it.
type Disconnector interface {
	Disconnect(conn *subscription.Connection)
}

// Engine is the coordinator tying a Datastore, a commit log, a
// subscription Manager, an identity Registry, RLS rules, and a reducer
// registry into one runnable database. It implements wsserver.Handler.
type Engine struct {
	ds       *datastore.Datastore
	log      *commitlog.Commitlog[*datastore.CommitRecord]
	subs     *subscription.Manager
	registry *protocol.Registry
	rules    rls.RuleProvider
	reducers *ReducerRegistry

	owner        protocol.Identity
	disconnector Disconnector
}

// New assembles an Engine from already-constructed components. ds must be
// bootstrapped (and, on restart, Engine.Replay run) before any CallReducer.
// owner is the identity RLS bypasses entirely (spec.md §4.7's "for the
// database owner, RLS is bypassed entirely") — this port mints it once at
// startup rather than persisting it, since multi-operator ownership
// transfer is out of scope.
func New(ds *datastore.Datastore, cl *commitlog.Commitlog[*datastore.CommitRecord], subs *subscription.Manager, registry *protocol.Registry, rules rls.RuleProvider, reducers *ReducerRegistry, owner protocol.Identity) *Engine {
	return &Engine{
		ds:       ds,
		log:      cl,
		subs:     subs,
		registry: registry,
		rules:    rules,
		reducers: reducers,
		owner:    owner,
	}
}

// SetDisconnector wires the transport that can tear down an overloaded
// connection, once it exists (wsserver.Server needs the Engine as its
// Handler, so this is set after both are constructed).
func (e *Engine) SetDisconnector(d Disconnector) { e.disconnector = d }

// Reducers exposes the registry for cmd/spacetime to register reducer
// implementations against before serving traffic.
func (e *Engine) Reducers() *ReducerRegistry { return e.reducers }

// Replay rebuilds CommittedState from every commit persisted under dir,
// starting from offset 0, before the engine starts accepting connections.
// Must be called after ds.Bootstrap (system tables must exist before
// ApplyReplayRecord's BuildMissingTables callback can resolve user-table
// schemas) and before any CallReducer.
func (e *Engine) Replay(dir string) error {
	decoder := commitlog.DecoderFunc[*datastore.DecodedCommitRecord](datastore.DecodeCommitRecord)
	err := commitlog.FoldTransactions(dir, 0, decoder, func(txOffset uint64, version uint8, rec *datastore.DecodedCommitRecord) error {
		return e.ds.ApplyReplayRecord(rec)
	})
	if err != nil {
		return fmt.Errorf("engine: replay: %w", err)
	}
	return e.ds.RebuildSequences()
}

// Close flushes and closes the commit log.
func (e *Engine) Close() error {
	if _, err := e.log.Flush(); err != nil {
		return err
	}
	return e.log.Close()
}

// isOwner reports whether identity is the database owner RLS bypasses
// entirely.
func (e *Engine) isOwner(identity protocol.Identity) bool {
	return identity == e.owner
}

// Ready implements internal/health.Checker: a MutTx/EndTx round trip
// proves the datastore can still take its write lock, the one condition
// under which CallReducer would otherwise hang.
func (e *Engine) Ready() error {
	tx := e.ds.BeginMutTx()
	tx.Rollback()
	e.ds.EndTx(tx)
	return nil
}

// CallReducer runs a registered reducer inside a MutTx, appends the
// resulting CommitRecord to the commit log on success, and broadcasts a
// TransactionUpdate to every affected subscriber plus the caller. It
// always returns a ReducerCallResult — Status is StatusFailed (with
// FailureMessage set) exactly when the
// reducer itself failed or the transaction could not be committed, in
// which case no row mutation took effect.
func (e *Engine) CallReducer(caller protocol.Identity, callerAddr protocol.Address, req *protocol.CallReducer) ReducerCallResult {
	start := time.Now()
	fn, reducerID, err := e.reducers.lookup(req.Reducer)
	if err != nil {
		return e.failedResult(req, reducerID, err, start)
	}

	tx := e.ds.BeginMutTx()
	output, err := fn(tx, req.Args, caller, callerAddr)
	if err != nil {
		tx.Rollback()
		e.ds.EndTx(tx)
		metrics.TxRollbacksTotal.Inc()
		return e.failedResult(req, reducerID, err, start)
	}

	commitStart := time.Now()
	txData, err := tx.Commit()
	rowTypes := tx.RowTypes()
	e.ds.EndTx(tx)
	if err != nil {
		metrics.TxRollbacksTotal.Inc()
		return e.failedResult(req, reducerID, err, start)
	}
	metrics.TxCommitsTotal.Inc()
	metrics.TxCommitDuration.Observe(time.Since(commitStart).Seconds())

	rec := &datastore.CommitRecord{
		Inputs:   &datastore.ReducerInputs{ReducerName: req.Reducer, ReducerArgsBSATN: req.Args},
		Outputs:  &datastore.ReducerOutputs{Value: output},
		TxData:   txData,
		RowTypes: rowTypes,
	}
	if err := e.log.AppendMaybeFlush(rec); err != nil {
		log.WithComponent("engine").Error().Err(err).Str("reducer", req.Reducer).Msg("commit log append failed")
	}

	hostMicros := uint64(time.Since(start).Microseconds())
	energy := energyCost(req.Args)
	metrics.EnergyQuantaUsed.Observe(float64(energy))
	metrics.HostExecutionMicros.Observe(float64(hostMicros))

	meta := subscription.TxMeta{
		Status:                      protocol.UpdateStatus{Kind: protocol.StatusCommitted},
		TimestampUnixMicros:         time.Now().UnixMicro(),
		CallerIdentity:              caller,
		CallerAddress:               callerAddr,
		ReducerCall:                 protocol.ReducerCallInfo{ReducerName: req.Reducer, ReducerID: reducerID, Args: req.Args, RequestID: req.RequestID},
		EnergyQuantaUsed:            energy,
		HostExecutionDurationMicros: hostMicros,
	}
	e.broadcast(txData, meta)

	return ReducerCallResult{
		ReducerName:                 req.Reducer,
		ReducerID:                   reducerID,
		RequestID:                   req.RequestID,
		Output:                      output,
		Status:                      protocol.StatusCommitted,
		EnergyQuantaUsed:            energy,
		HostExecutionDurationMicros: hostMicros,
	}
}

func (e *Engine) failedResult(req *protocol.CallReducer, reducerID uint32, err error, start time.Time) ReducerCallResult {
	hostMicros := uint64(time.Since(start).Microseconds())
	return ReducerCallResult{
		ReducerName:                 req.Reducer,
		ReducerID:                   reducerID,
		RequestID:                   req.RequestID,
		Status:                      protocol.StatusFailed,
		FailureMessage:              err.Error(),
		HostExecutionDurationMicros: hostMicros,
	}
}

// broadcast diffs txData against every connection's Applied queries and
// pushes a TransactionUpdate to whichever ones matched, tearing down any
// connection whose outbound queue was already full.
func (e *Engine) broadcast(txData *datastore.TxData, meta subscription.TxMeta) {
	rtx := e.ds.BeginReadTx()
	overloaded := e.subs.Broadcast(rtx, txData, meta)
	e.ds.EndReadTx(rtx)
	if e.disconnector == nil {
		return
	}
	for _, conn := range overloaded {
		e.disconnector.Disconnect(conn)
	}
}

// energyCost is a synthetic fuel metering stand-in: the real system meters
// actual WASM instruction count, which is out of scope here (spec.md §1).
// This charges a small fixed base plus one quantum per argument byte, just
// enough to give TransactionUpdate.energy_quanta_used a value that varies
// with what the reducer actually did.
func energyCost(args []byte) uint64 {
	return 10 + uint64(len(args))
}
