package subscription

import (
	"sync"

	"github.com/cuemby/spacetime/internal/protocol"
)

// defaultQueueCapacity is the per-subscriber bounded outbound queue depth
// spec.md §5's backpressure policy requires.
const defaultQueueCapacity = 128

// State is a subscribed query's position in spec.md §4.9's state machine.
type State int

const (
	StatePending State = iota
	StateSent
	StateApplied
	StateEnded
	StateError
	StateCancelled
)

// Query is one registered subscription: a set of physical plans (more than
// one when RLS expanded the client's query into several alternatives,
// unioned together) all targeting the same table.
type Query struct {
	QueryID   uint32
	State     State
	TableID   uint32
	TableName string
	Plans     []PhysicalQuery
}

// Connection is one subscriber's outbound message queue and registered
// query set, mirroring the teacher's events.Broker subscriber shape: a
// buffered channel per subscriber, guarded by a map behind a RWMutex owned
// by Manager.
type Connection struct {
	Identity protocol.Identity
	Address  protocol.Address

	mu      sync.Mutex
	queries map[uint32]*Query
	outbox  chan protocol.ServerMessage
}

// NewConnection allocates a Connection with the default bounded outbound
// queue.
func NewConnection(identity protocol.Identity, address protocol.Address) *Connection {
	return &Connection{
		Identity: identity,
		Address:  address,
		queries:  make(map[uint32]*Query),
		outbox:   make(chan protocol.ServerMessage, defaultQueueCapacity),
	}
}

// TrySend enqueues msg without blocking, reporting false if the queue is
// full. spec.md §5: a full queue means the client is too slow and the
// connection should be torn down, not grown without bound.
func (c *Connection) TrySend(msg protocol.ServerMessage) bool {
	select {
	case c.outbox <- msg:
		return true
	default:
		return false
	}
}

// Outbox exposes the connection's send queue for a transport layer
// (internal/wsserver) to drain.
func (c *Connection) Outbox() <-chan protocol.ServerMessage { return c.outbox }

// Close closes the outbound queue; draining goroutines should exit on
// seeing it closed.
func (c *Connection) Close() { close(c.outbox) }

func (c *Connection) query(queryID uint32) (*Query, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.queries[queryID]
	return q, ok
}

func (c *Connection) setQuery(q *Query) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries[q.QueryID] = q
}

func (c *Connection) removeQuery(queryID uint32) (*Query, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.queries[queryID]
	if ok {
		delete(c.queries, queryID)
	}
	return q, ok
}

// QueryIDs returns every query currently registered on c, regardless of
// state, for callers implementing spec.md §6's Subscribe message ("replaces
// a connection's entire subscription set").
func (c *Connection) QueryIDs() []uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]uint32, 0, len(c.queries))
	for id := range c.queries {
		out = append(out, id)
	}
	return out
}

// AppliedQueries returns every query currently in StateApplied, the set a
// committed transaction must be diffed against.
func (c *Connection) AppliedQueries() []*Query {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Query, 0, len(c.queries))
	for _, q := range c.queries {
		if q.State == StateApplied {
			out = append(out, q)
		}
	}
	return out
}
