package subscription

import (
	"sync"

	"github.com/cuemby/spacetime/internal/bsatn"
	"github.com/cuemby/spacetime/internal/catalog"
	"github.com/cuemby/spacetime/internal/datastore"
	"github.com/cuemby/spacetime/internal/protocol"
	"github.com/cuemby/spacetime/internal/query"
)

// PhysicalQuery is one lowered alternative of a subscribed query, paired
// with the row type needed to BSATN-encode whatever it scans.
type PhysicalQuery struct {
	Plan    query.PhysicalPlan
	RowType catalog.AlgebraicType
}

// Manager tracks every live Connection. It has no opinion on transport —
// internal/wsserver owns the socket and drains each Connection's Outbox.
type Manager struct {
	mu    sync.RWMutex
	conns map[*Connection]bool
}

func NewManager() *Manager {
	return &Manager{conns: make(map[*Connection]bool)}
}

func (m *Manager) Add(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conns[c] = true
}

func (m *Manager) Remove(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conns, c)
}

// Subscribe evaluates a newly registered query's plans against the
// committed snapshot rtx holds, registers it on conn in StateSent, and
// returns the InitialSubscription response (spec.md §4.9 "Initial state").
func (m *Manager) Subscribe(conn *Connection, queryID uint32, tableID uint32, tableName string, plans []PhysicalQuery, rtx *datastore.ReadTx, requestID uint32, hostMicros uint64) (protocol.InitialSubscription, error) {
	src := query.CommittedSource{Tx: rtx}
	rowBytes, err := evalUnion(plans, src, query.DeltaNone)
	if err != nil {
		return protocol.InitialSubscription{}, err
	}

	list := protocol.EncodeRowList(rowBytes)
	qu := protocol.QueryUpdate{Inserts: list}
	tu := protocol.TableUpdate{
		TableID:   tableID,
		TableName: tableName,
		NumRows:   uint64(list.NumRows()),
		Updates:   []protocol.CompressableQueryUpdate{protocol.CompressQueryUpdate(qu, list.RowsData)},
	}

	q := &Query{QueryID: queryID, State: StateSent, TableID: tableID, TableName: tableName, Plans: plans}
	conn.setQuery(q)

	return protocol.InitialSubscription{
		DatabaseUpdate:                    protocol.DatabaseUpdate{Tables: []protocol.TableUpdate{tu}},
		RequestID:                         requestID,
		TotalHostExecutionDurationMicros: hostMicros,
	}, nil
}

// MarkApplied transitions a Sent query to Applied once its initial
// response has actually been handed to the transport for delivery.
func (m *Manager) MarkApplied(conn *Connection, queryID uint32) {
	if q, ok := conn.query(queryID); ok && q.State == StateSent {
		conn.mu.Lock()
		q.State = StateApplied
		conn.mu.Unlock()
	}
}

// Unsubscribe removes queryID from conn. It reports whether the query had
// already been sent to the client (and so requires a server
// acknowledgment) or was still Pending (dropped locally, per spec.md §5's
// cancellation rule).
func (m *Manager) Unsubscribe(conn *Connection, queryID uint32) (wasSent bool) {
	q, ok := conn.removeQuery(queryID)
	if !ok {
		return false
	}
	return q.State == StateSent || q.State == StateApplied
}

// TxMeta carries everything about a committed reducer call that
// TransactionUpdate needs beyond the per-subscriber row diff.
type TxMeta struct {
	Status                       protocol.UpdateStatus
	TimestampUnixMicros          int64
	CallerIdentity               protocol.Identity
	CallerAddress                protocol.Address
	ReducerCall                  protocol.ReducerCallInfo
	EnergyQuantaUsed             uint64
	HostExecutionDurationMicros uint64
}

// Broadcast evaluates every connection's Applied queries against txData's
// insert/delete delta and pushes a TransactionUpdate to each connection
// whose subscribed rows changed (spec.md §4.9 "Incremental updates").
// Connections whose TrySend fails (a full outbound queue) are returned so
// the caller can tear them down per spec.md §5's backpressure policy.
func (m *Manager) Broadcast(rtx *datastore.ReadTx, txData *datastore.TxData, meta TxMeta) []*Connection {
	m.mu.RLock()
	conns := make([]*Connection, 0, len(m.conns))
	for c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	var overloaded []*Connection
	for _, conn := range conns {
		update, ok := diffConnection(conn, rtx, txData)
		if !ok {
			continue
		}
		msg := &protocol.TransactionUpdate{
			Status:                       statusWithUpdate(meta.Status, update),
			TimestampUnixMicros:          meta.TimestampUnixMicros,
			CallerIdentity:               meta.CallerIdentity,
			CallerAddress:                meta.CallerAddress,
			ReducerCall:                  meta.ReducerCall,
			EnergyQuantaUsed:             meta.EnergyQuantaUsed,
			HostExecutionDurationMicros: meta.HostExecutionDurationMicros,
		}
		if !conn.TrySend(msg) {
			overloaded = append(overloaded, conn)
		}
	}
	return overloaded
}

func statusWithUpdate(status protocol.UpdateStatus, update protocol.DatabaseUpdate) protocol.UpdateStatus {
	if status.Kind == protocol.StatusCommitted {
		status.Update = update
	}
	return status
}

// diffConnection evaluates every Applied query on conn against txData's
// delta, returning the resulting DatabaseUpdate and whether it carries any
// rows at all (a connection with nothing to report is skipped entirely).
func diffConnection(conn *Connection, rtx *datastore.ReadTx, txData *datastore.TxData) (protocol.DatabaseUpdate, bool) {
	var tables []protocol.TableUpdate
	for _, q := range conn.AppliedQueries() {
		insertSrc := query.DeltaSource{Tx: rtx, TxData: txData}
		deleteSrc := insertSrc

		inserts, err := evalUnion(q.Plans, insertSrc, query.DeltaInserts)
		if err != nil {
			continue
		}
		deletes, err := evalUnion(q.Plans, deleteSrc, query.DeltaDeletes)
		if err != nil {
			continue
		}
		if len(inserts) == 0 && len(deletes) == 0 {
			continue
		}
		insertList := protocol.EncodeRowList(inserts)
		deleteList := protocol.EncodeRowList(deletes)
		qu := protocol.QueryUpdate{Deletes: deleteList, Inserts: insertList}
		tables = append(tables, protocol.TableUpdate{
			TableID:   q.TableID,
			TableName: q.TableName,
			NumRows:   uint64(insertList.NumRows() + deleteList.NumRows()),
			Updates:   []protocol.CompressableQueryUpdate{protocol.CompressQueryUpdate(qu, append(append([]byte{}, deleteList.RowsData...), insertList.RowsData...))},
		})
	}
	if len(tables) == 0 {
		return protocol.DatabaseUpdate{}, false
	}
	return protocol.DatabaseUpdate{Tables: tables}, true
}

// evalUnion runs every plan in plans against src under delta, BSATN-encodes
// the target table's row (the leftmost tuple element) from each result
// tuple, and deduplicates rows that more than one RLS alternative produced
// for the same underlying row.
func evalUnion(plans []PhysicalQuery, src query.Source, delta query.Delta) ([][]byte, error) {
	seen := map[string]bool{}
	var out [][]byte
	var encodeErr error
	for _, pq := range plans {
		withDelta := rebind(pq.Plan, delta)
		query.Execute(withDelta, src, query.Metrics{}, func(rows []catalog.AlgebraicValue) bool {
			row := rows[0]
			b, err := bsatn.Encode(pq.RowType, row)
			if err != nil {
				encodeErr = err
				return false
			}
			key := string(b)
			if seen[key] {
				return true
			}
			seen[key] = true
			out = append(out, b)
			return true
		})
		if encodeErr != nil {
			return nil, encodeErr
		}
	}
	return out, nil
}

// rebind returns plan's top-level TableScan pointed at delta instead of
// whatever it was lowered with, so the same physical plan built once at
// subscribe time can serve both the committed initial snapshot and every
// subsequent transaction's insert/delete delta.
func rebind(plan query.PhysicalPlan, delta query.Delta) query.PhysicalPlan {
	switch p := plan.(type) {
	case *query.TableScan:
		cp := *p
		cp.Delta = delta
		return &cp
	case *query.Filter:
		cp := *p
		cp.Input = rebind(p.Input, delta)
		return &cp
	case *query.IxJoin:
		cp := *p
		cp.Lhs = rebind(p.Lhs, delta)
		return &cp
	case *query.HashJoin:
		cp := *p
		cp.Lhs = rebind(p.Lhs, delta)
		return &cp
	case *query.NLJoin:
		cp := *p
		cp.Lhs = rebind(p.Lhs, delta)
		return &cp
	default:
		return plan
	}
}
