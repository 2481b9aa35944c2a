package engine

import (
	"fmt"
	"sync"

	"github.com/cuemby/spacetime/internal/datastore"
	"github.com/cuemby/spacetime/internal/protocol"
)

// ReducerFunc is a registered reducer's implementation: given a write
// transaction and the caller's identity/address, it applies whatever row
// mutations it wants through tx and returns a short diagnostic string
// (spec.md §6's reducer_output_string) or an error, which aborts the
// transaction. The real system runs this code inside a WebAssembly
// sandbox (spec.md §1 Non-goals); that host is a named external
// collaborator this port does not reimplement, so ReducerFunc is the
// Go-native registration point standing in for it.
type ReducerFunc func(tx *datastore.MutTx, args []byte, caller protocol.Identity, callerAddr protocol.Address) (output string, err error)

// ReducerRegistry maps reducer names to their implementations and mints
// stable ReducerIDs for protocol.ReducerCallInfo, mirroring how
// CommittedState.NextID hands out TableIDs.
type ReducerRegistry struct {
	mu      sync.RWMutex
	byName  map[string]ReducerFunc
	ids     map[string]uint32
	nextID  uint32
}

func NewReducerRegistry() *ReducerRegistry {
	return &ReducerRegistry{
		byName: make(map[string]ReducerFunc),
		ids:    make(map[string]uint32),
	}
}

// Register adds a reducer under name, assigning it the next ReducerID.
// Registering the same name twice replaces the implementation but keeps
// its previously assigned ID.
func (r *ReducerRegistry) Register(name string, fn ReducerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[name] = fn
	if _, ok := r.ids[name]; !ok {
		r.ids[name] = r.nextID
		r.nextID++
	}
}

func (r *ReducerRegistry) lookup(name string) (ReducerFunc, uint32, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.byName[name]
	if !ok {
		return nil, 0, fmt.Errorf("engine: unknown reducer %q", name)
	}
	return fn, r.ids[name], nil
}
