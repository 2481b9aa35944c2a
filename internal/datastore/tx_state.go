package datastore

import (
	"github.com/cuemby/spacetime/internal/catalog"
	"github.com/cuemby/spacetime/internal/page"
	"github.com/cuemby/spacetime/internal/table"
)

// TxState holds one transaction's uncommitted deltas: rows newly inserted
// (in per-table scratch Tables of their own, not yet merged into the
// committed Tables) and committed-state RowPointers marked for deletion.
// Nothing here is visible to any other transaction until Commit merges it.
type TxState struct {
	InsertTables map[uint32]*table.Table
	DeleteTables map[uint32]map[table.RowPointer]bool
	Blobs        *page.BlobStore

	// truncated lists tables this transaction cleared with Truncate, in
	// call order. Truncate applies directly to CommittedState (see
	// MutTx.Truncate), so this only needs to remember which tables for
	// Commit to report in TxData.Truncates.
	truncated []uint32
}

func NewTxState() *TxState {
	return &TxState{
		InsertTables: make(map[uint32]*table.Table),
		DeleteTables: make(map[uint32]map[table.RowPointer]bool),
		Blobs:        page.NewBlobStore(),
	}
}

func (tx *TxState) isDeleted(tableID uint32, ptr table.RowPointer) bool {
	return tx.DeleteTables[tableID][ptr]
}

func (tx *TxState) markDeleted(tableID uint32, ptr table.RowPointer) {
	if tx.DeleteTables[tableID] == nil {
		tx.DeleteTables[tableID] = make(map[table.RowPointer]bool)
	}
	tx.DeleteTables[tableID][ptr] = true
}

func (tx *TxState) insertTable(schema *catalog.TableSchema) *table.Table {
	t, ok := tx.InsertTables[schema.TableID]
	if !ok {
		t = table.NewTable(schema)
		tx.InsertTables[schema.TableID] = t
	}
	return t
}
