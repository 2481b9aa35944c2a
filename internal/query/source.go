package query

import (
	"github.com/cuemby/spacetime/internal/catalog"
	"github.com/cuemby/spacetime/internal/datastore"
	"github.com/cuemby/spacetime/internal/table"
)

// CommittedSource executes a PhysicalPlan entirely against a committed
// snapshot; used for a subscription's initial state and for OneOffQuery
// (spec.md §4.9, §12).
type CommittedSource struct {
	Tx *datastore.ReadTx
}

func (s CommittedSource) Scan(tableID uint32, delta Delta, fn func(catalog.AlgebraicValue) bool) {
	if delta != DeltaNone {
		return
	}
	s.Tx.ScanAll(tableID, fn)
}

func (s CommittedSource) IndexSeek(tableID, indexID uint32, r table.Range) []catalog.AlgebraicValue {
	return s.Tx.IndexSeek(tableID, indexID, r)
}

// DeltaSource executes a PhysicalPlan's top-level TableScan against one
// committed transaction's insert or delete set, and every other table
// reference (joins pulled in by RLS expansion) against committed state.
// Used for a subscription's per-transaction incremental diff (spec.md
// §4.9 step 1-2).
type DeltaSource struct {
	Tx      *datastore.ReadTx
	TxData  *datastore.TxData
}

func (s DeltaSource) Scan(tableID uint32, delta Delta, fn func(catalog.AlgebraicValue) bool) {
	if delta == DeltaNone {
		s.Tx.ScanAll(tableID, fn)
		return
	}
	want := datastore.TxOpInsert
	if delta == DeltaDeletes {
		want = datastore.TxOpDelete
	}
	for _, rec := range s.TxData.Records {
		if rec.TableID != tableID || rec.Op != want {
			continue
		}
		if !fn(rec.Row) {
			return
		}
	}
}

func (s DeltaSource) IndexSeek(tableID, indexID uint32, r table.Range) []catalog.AlgebraicValue {
	return s.Tx.IndexSeek(tableID, indexID, r)
}
