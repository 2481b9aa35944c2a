package engine

import (
	"sync/atomic"

	"github.com/cuemby/spacetime/internal/datastore"
	"github.com/cuemby/spacetime/internal/protocol"
	"github.com/cuemby/spacetime/internal/query"
	"github.com/cuemby/spacetime/internal/rls"
	"github.com/cuemby/spacetime/internal/subscription"
	"github.com/cuemby/spacetime/pkg/log"
)

var nextQueryID uint32

func allocQueryID() uint32 { return atomic.AddUint32(&nextQueryID, 1) }

// OnConnect implements wsserver.Handler. The IdentityToken has already
// been sent by the transport before this fires.
func (e *Engine) OnConnect(conn *subscription.Connection) {
	log.WithConnection(conn.Address.String()).Info().Msg("connected")
}

// OnDisconnect implements wsserver.Handler.
func (e *Engine) OnDisconnect(conn *subscription.Connection) {
	log.WithConnection(conn.Address.String()).Info().Msg("disconnected")
}

// OnMessage implements wsserver.Handler, dispatching each decoded client
// message to its handling path.
func (e *Engine) OnMessage(conn *subscription.Connection, msg protocol.ClientMessage) {
	switch m := msg.(type) {
	case *protocol.CallReducer:
		result := e.CallReducer(conn.Identity, conn.Address, m)
		conn.TrySend(resultToTransactionUpdate(result, conn.Address))
	case *protocol.Subscribe:
		e.handleSubscribe(conn, m)
	case *protocol.SubscribeMulti:
		e.handleSubscribeMulti(conn, m)
	case *protocol.UnsubscribeMulti:
		e.handleUnsubscribeMulti(conn, m)
	case *protocol.OneOffQuery:
		e.handleOneOffQuery(conn, m)
	}
}

func resultToTransactionUpdate(r ReducerCallResult, addr protocol.Address) *protocol.TransactionUpdate {
	status := protocol.UpdateStatus{Kind: r.Status}
	if r.Status == protocol.StatusFailed {
		status.FailureMessage = r.FailureMessage
	}
	return &protocol.TransactionUpdate{
		Status:                      status,
		CallerAddress:               addr,
		ReducerCall:                 protocol.ReducerCallInfo{ReducerName: r.ReducerName, ReducerID: r.ReducerID, RequestID: r.RequestID},
		EnergyQuantaUsed:            r.EnergyQuantaUsed,
		HostExecutionDurationMicros: r.HostExecutionDurationMicros,
	}
}

// compileQuery parses, RLS-expands, and lowers one subscription query
// string against rtx's committed schema, returning the primary table it
// targets and one PhysicalQuery per RLS alternative (spec.md §4.7's
// "a subscription evaluates the union of all of them").
func (e *Engine) compileQuery(queryString string, isOwner bool, rtx *datastore.ReadTx) (uint32, string, []subscription.PhysicalQuery, error) {
	logical, err := query.Parse(queryString)
	if err != nil {
		return 0, "", nil, err
	}
	alternatives, err := rls.Resolve(logical, isOwner, e.rules)
	if err != nil {
		return 0, "", nil, err
	}
	tableName := query.TableNameOf(logical)
	schema, err := rtx.SchemaByName(tableName)
	if err != nil {
		return 0, "", nil, err
	}
	rowType := schema.RowType()
	plans := make([]subscription.PhysicalQuery, 0, len(alternatives))
	for _, alt := range alternatives {
		phys, err := query.Lower(alt, query.DeltaNone, rtx)
		if err != nil {
			return 0, "", nil, err
		}
		plans = append(plans, subscription.PhysicalQuery{Plan: phys, RowType: rowType})
	}
	return schema.TableID, schema.TableName, plans, nil
}

// handleSubscribe implements the legacy Subscribe message: it replaces
// every query currently registered on conn with the ones in msg, combining
// all of their initial snapshots into a single InitialSubscription.
func (e *Engine) handleSubscribe(conn *subscription.Connection, msg *protocol.Subscribe) {
	for _, id := range conn.QueryIDs() {
		e.subs.Unsubscribe(conn, id)
	}

	rtx := e.ds.BeginReadTx()
	defer e.ds.EndReadTx(rtx)
	isOwner := e.isOwner(conn.Identity)

	var tables []protocol.TableUpdate
	var hostMicros uint64
	for _, qs := range msg.QueryStrings {
		tableID, tableName, plans, err := e.compileQuery(qs, isOwner, rtx)
		if err != nil {
			conn.TrySend(&protocol.OneOffQueryResponse{Error: err.Error()})
			continue
		}
		queryID := allocQueryID()
		init, err := e.subs.Subscribe(conn, queryID, tableID, tableName, plans, rtx, msg.RequestID, hostMicros)
		if err != nil {
			continue
		}
		e.subs.MarkApplied(conn, queryID)
		tables = append(tables, init.DatabaseUpdate.Tables...)
		hostMicros = init.TotalHostExecutionDurationMicros
	}
	conn.TrySend(&protocol.InitialSubscription{
		DatabaseUpdate:                    protocol.DatabaseUpdate{Tables: tables},
		RequestID:                         msg.RequestID,
		TotalHostExecutionDurationMicros: hostMicros,
	})
}

// handleSubscribeMulti registers one additional query under msg.QueryID
// without disturbing any other subscription on conn (spec.md §6).
func (e *Engine) handleSubscribeMulti(conn *subscription.Connection, msg *protocol.SubscribeMulti) {
	rtx := e.ds.BeginReadTx()
	defer e.ds.EndReadTx(rtx)
	isOwner := e.isOwner(conn.Identity)

	if len(msg.QueryStrings) == 0 {
		return
	}
	// SubscribeMulti's query_id addresses one table; only the first query
	// string's table is used to key it, matching Manager.Subscribe's
	// one-table-per-queryID shape. Additional RLS alternatives for that
	// same table still union together below.
	tableID, tableName, plans, err := e.compileQuery(msg.QueryStrings[0], isOwner, rtx)
	if err != nil {
		conn.TrySend(&protocol.OneOffQueryResponse{Error: err.Error()})
		return
	}
	for _, qs := range msg.QueryStrings[1:] {
		_, _, more, err := e.compileQuery(qs, isOwner, rtx)
		if err != nil {
			conn.TrySend(&protocol.OneOffQueryResponse{Error: err.Error()})
			return
		}
		plans = append(plans, more...)
	}

	init, err := e.subs.Subscribe(conn, msg.QueryID, tableID, tableName, plans, rtx, msg.RequestID, 0)
	if err != nil {
		return
	}
	e.subs.MarkApplied(conn, msg.QueryID)
	conn.TrySend(&init)
}

// handleUnsubscribeMulti cancels one query without disturbing the rest of
// conn's subscriptions, acknowledging with an empty InitialSubscription if
// the query had already been sent (spec.md §5's cancellation rule).
func (e *Engine) handleUnsubscribeMulti(conn *subscription.Connection, msg *protocol.UnsubscribeMulti) {
	wasSent := e.subs.Unsubscribe(conn, msg.QueryID)
	if wasSent {
		conn.TrySend(&protocol.InitialSubscription{RequestID: msg.RequestID})
	}
}

// handleOneOffQuery runs msg's query once against a fresh read snapshot
// and replies with its rows, not establishing any subscription.
func (e *Engine) handleOneOffQuery(conn *subscription.Connection, msg *protocol.OneOffQuery) {
	resp := e.RunOneOffQuery(conn.Identity, msg)
	conn.TrySend(&resp)
}
