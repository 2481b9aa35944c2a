package datastore

import (
	"sync"

	"github.com/cuemby/spacetime/internal/catalog"
)

// Datastore is the top-level, process-wide owner of CommittedState and
// SequencesState. Lock order is always CommittedState's mutex first, then
// SequencesState's — matching the original's documented discipline to
// avoid deadlock between the single writer and any concurrent readers of
// row counts or sequence allocation. Row-level read/write operations go
// through a MutTx obtained from BeginMutTx; this type only owns bootstrap
// and the transaction boundary.
type Datastore struct {
	mu        sync.RWMutex
	committed *CommittedState
	sequences *SequencesState
}

func New() *Datastore {
	return &Datastore{
		committed: NewCommittedState(),
		sequences: NewSequencesState(),
	}
}

// Bootstrap populates the system catalog tables. Must be called exactly
// once, before any BeginMutTx, on a freshly created Datastore (or after
// commit-log replay has otherwise reconstructed CommittedState).
func (ds *Datastore) Bootstrap() error {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.committed.BootstrapSystemTables()
}

// Restore installs a CommittedState reconstructed by commit-log replay and
// rebuilds sequence state from it, in place of Bootstrap.
func (ds *Datastore) Restore(cs *CommittedState) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.committed = cs
	return ds.committed.BuildSequenceState(ds.sequences)
}

// RebuildSequences recomputes in-memory Sequence counters from whatever
// ApplyReplayRecord has left in CommittedState, after commit-log replay has
// finished and before the engine starts accepting reducer calls.
func (ds *Datastore) RebuildSequences() error {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.committed.BuildSequenceState(ds.sequences)
}

// BeginMutTx opens a new read-write transaction. The caller must call
// either Commit or Rollback on the returned MutTx.
//
// Holding ds.mu for the lifetime of the transaction matches spec.md's
// single-writer model: only one MutTx may be open at a time.
func (ds *Datastore) BeginMutTx() *MutTx {
	ds.mu.Lock()
	return newMutTx(ds)
}

// EndTx releases the lock BeginMutTx took, after the caller has called
// Commit or Rollback on tx.
func (ds *Datastore) EndTx(tx *MutTx) {
	_ = tx
	ds.mu.Unlock()
}

// TableRowCounts provides metrics.StatsSource's row counts for read-only reporting
// paths that don't need a full transaction.
func (ds *Datastore) TableRowCounts() map[string]int64 {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.committed.TableRowCounts()
}

// SchemaByID returns the committed schema for tableID, for use as the
// schemaFor callback of CommittedState.BuildMissingTables and by callers
// outside a transaction that only need to read the catalog shape.
func (ds *Datastore) SchemaByID(tableID uint32) (*catalog.TableSchema, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	t, ok := ds.committed.Tables[tableID]
	if !ok {
		return nil, &TableError{Op: "schema_by_id", TableID: tableID}
	}
	return t.Schema, nil
}

// SchemaByName looks up a committed table's schema by name, scanning the
// in-memory committed tables for a schema with that name.
func (ds *Datastore) SchemaByName(name string) (*catalog.TableSchema, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	for _, t := range ds.committed.Tables {
		if t.Schema.TableName == name {
			return t.Schema, nil
		}
	}
	return nil, &TableError{Op: "schema_by_name", Name: name}
}
