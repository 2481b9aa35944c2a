package datastore

import (
	"github.com/cuemby/spacetime/internal/catalog"
	"github.com/cuemby/spacetime/internal/table"
)

// ReadTx is a read-only snapshot handle: it holds CommittedState's RWMutex
// in shared mode for its lifetime, so it never observes a partial commit
// and never blocks a concurrent reader, only the single writer. Used by
// the query executor for subscription initial-state evaluation and by
// OneOffQuery, which spec.md §5 distinguishes from the exclusive MutTx
// lock a reducer call takes.
type ReadTx struct {
	ds *Datastore
}

// BeginReadTx acquires a shared read lock on CommittedState. The caller
// must call EndReadTx exactly once.
func (ds *Datastore) BeginReadTx() *ReadTx {
	ds.mu.RLock()
	return &ReadTx{ds: ds}
}

// EndReadTx releases the lock BeginReadTx took.
func (ds *Datastore) EndReadTx(tx *ReadTx) {
	_ = tx
	ds.mu.RUnlock()
}

func (tx *ReadTx) SchemaByID(tableID uint32) (*catalog.TableSchema, error) {
	t, ok := tx.ds.committed.Tables[tableID]
	if !ok {
		return nil, &TableError{Op: "schema_by_id", TableID: tableID}
	}
	return t.Schema, nil
}

func (tx *ReadTx) SchemaByName(name string) (*catalog.TableSchema, error) {
	for _, t := range tx.ds.committed.Tables {
		if t.Schema.TableName == name {
			return t.Schema, nil
		}
	}
	return nil, &TableError{Op: "schema_by_name", Name: name}
}

// ScanAll visits every committed row of tableID in arbitrary order.
func (tx *ReadTx) ScanAll(tableID uint32, fn func(catalog.AlgebraicValue) bool) {
	t, ok := tx.ds.committed.Tables[tableID]
	if !ok {
		return
	}
	t.ScanRows(tx.ds.committed.Blobs, func(_ table.RowPointer, row catalog.AlgebraicValue) bool {
		return fn(row)
	})
}

// IndexSeek returns every committed row matching r on the named index, in
// index-key order.
func (tx *ReadTx) IndexSeek(tableID, indexID uint32, r table.Range) []catalog.AlgebraicValue {
	t, ok := tx.ds.committed.Tables[tableID]
	if !ok {
		return nil
	}
	ptrs := t.IndexSeek(indexID, r)
	out := make([]catalog.AlgebraicValue, 0, len(ptrs))
	for _, ptr := range ptrs {
		row, err := t.Get(tx.ds.committed.Blobs, ptr)
		if err != nil {
			continue
		}
		out = append(out, row)
	}
	return out
}

// IndexByID exposes a table's index definition lookup, used by the query
// planner to decide whether a filtered scan can be lowered to an IxScan.
func (tx *ReadTx) IndexByID(tableID, indexID uint32) (*table.Index, bool) {
	t, ok := tx.ds.committed.Tables[tableID]
	if !ok {
		return nil, false
	}
	return t.IndexByID(indexID)
}
