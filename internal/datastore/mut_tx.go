package datastore

import (
	"github.com/cuemby/spacetime/internal/catalog"
	"github.com/cuemby/spacetime/internal/table"
)

// MutTx is a single read-write transaction handle. Inserts are buffered in
// a per-table scratch Table under tx.InsertTables until Commit; deletes of
// already-committed rows are recorded as pending RowPointers in
// tx.DeleteTables. Neither is visible to any other transaction (there are
// none concurrently, per spec.md's single-writer model) until Commit merges
// them into the owning Datastore's CommittedState.
//
// Catalog operations (CreateTable et al.) are applied directly to
// CommittedState for simplicity — see DESIGN.md's "MutTx DDL visibility"
// note — but the system-catalog rows CreateTable and CreateIndex write
// still flow through the normal Insert path so they appear in the
// resulting TxData. DropTable deletes its catalog rows directly from
// CommittedState, so those deletions do not appear in TxData.
type MutTx struct {
	ds  *Datastore
	tx  *TxState
	done bool
}

func newMutTx(ds *Datastore) *MutTx {
	return &MutTx{ds: ds, tx: NewTxState()}
}

func (tx *MutTx) schemaOf(tableID uint32) (*catalog.TableSchema, error) {
	if t, ok := tx.ds.committed.Tables[tableID]; ok {
		return t.Schema, nil
	}
	return nil, &TableError{Op: "schema lookup", TableID: tableID}
}

// Schema looks up a committed table's schema by name, for callers (the
// query planner, the migration planner) that only know a table by its
// name at this point in the transaction.
func (tx *MutTx) Schema(name string) (*catalog.TableSchema, error) {
	for _, t := range tx.ds.committed.Tables {
		if t.Schema.TableName == name {
			return t.Schema, nil
		}
	}
	return nil, &TableError{Op: "schema", Name: name}
}

// CreateTable registers a new user table, allocating it the next TableID,
// and records its catalog metadata into the system tables.
func (tx *MutTx) CreateTable(schema *catalog.TableSchema) (uint32, error) {
	cs := tx.ds.committed
	schema.TableID = cs.NextID
	cs.NextID++
	cs.Tables[schema.TableID] = table.NewTable(schema)

	if _, err := tx.Insert(catalog.StTablesID, stTableRow(schema)); err != nil {
		return 0, err
	}
	for _, row := range stColumnRows(schema) {
		if _, err := tx.Insert(catalog.StColumnsID, row); err != nil {
			return 0, err
		}
	}
	for _, row := range stIndexRows(schema) {
		if _, err := tx.Insert(catalog.StIndexesID, row); err != nil {
			return 0, err
		}
	}
	for i, row := range stSequenceRows(schema) {
		if _, err := tx.Insert(catalog.StSequencesID, row); err != nil {
			return 0, err
		}
		tx.ds.sequences.Register(schema.Sequences[i])
	}
	return schema.TableID, nil
}

// DropTable removes a user table and its system-catalog rows.
func (tx *MutTx) DropTable(tableID uint32) error {
	cs := tx.ds.committed
	t, ok := cs.Tables[tableID]
	if !ok {
		return &TableError{Op: "drop_table", TableID: tableID}
	}
	for _, seq := range t.Schema.Sequences {
		tx.ds.sequences.Remove(seq.SequenceID)
	}
	delete(cs.Tables, tableID)
	tx.deleteSystemRowsForTable(tableID)
	return nil
}

func (tx *MutTx) deleteSystemRowsForTable(tableID uint32) {
	cs := tx.ds.committed
	idVal := catalog.U32Value(tableID)
	for _, sysID := range []uint32{catalog.StTablesID, catalog.StColumnsID, catalog.StIndexesID, catalog.StSequencesID} {
		sys, ok := cs.Tables[sysID]
		if !ok {
			continue
		}
		var toDelete []table.RowPointer
		sys.ScanRows(cs.Blobs, func(ptr table.RowPointer, row catalog.AlgebraicValue) bool {
			if row.Elements[0].Equal(idVal) {
				toDelete = append(toDelete, ptr)
			}
			return true
		})
		for _, ptr := range toDelete {
			sys.Delete(cs.Blobs, ptr)
		}
	}
}

// CreateIndex adds a secondary index to an existing table, building it from
// every row currently present.
func (tx *MutTx) CreateIndex(tableID uint32, def catalog.IndexDef) error {
	t, ok := tx.ds.committed.Tables[tableID]
	if !ok {
		return &TableError{Op: "create_index", TableID: tableID}
	}
	t.Schema.Indexes = append(t.Schema.Indexes, def)
	idx := table.NewIndex(def)
	t.ScanRows(tx.ds.committed.Blobs, func(ptr table.RowPointer, row catalog.AlgebraicValue) bool {
		cols := make([]catalog.AlgebraicValue, len(def.Columns))
		for i, c := range def.Columns {
			cols[i] = row.Elements[c]
		}
		_ = idx.Insert(cols, ptr)
		return true
	})
	_, err := tx.Insert(catalog.StIndexesID, catalog.ProductValue(
		catalog.U32Value(def.IndexID), catalog.U32Value(tableID),
		catalog.StringValue(def.IndexName), catalog.BoolValue(def.IsUnique)))
	return err
}

// Truncate removes every row of tableID, both previously committed rows and
// any this same transaction already inserted, and records a single
// TruncateRecord for the commit log rather than one delete per row. Applied
// directly against CommittedState, consistent with this port's DDL-applies-
// directly-to-CommittedState simplification (see DESIGN.md's "MutTx DDL
// visibility" note) rather than this port's Delete, which instead buffers
// into TxState.
func (tx *MutTx) Truncate(tableID uint32) error {
	cs := tx.ds.committed
	t, ok := cs.Tables[tableID]
	if !ok {
		return &TableError{Op: "truncate", TableID: tableID}
	}
	delete(tx.tx.InsertTables, tableID)
	delete(tx.tx.DeleteTables, tableID)

	var ptrs []table.RowPointer
	t.ScanRows(cs.Blobs, func(ptr table.RowPointer, _ catalog.AlgebraicValue) bool {
		ptrs = append(ptrs, ptr)
		return true
	})
	for _, ptr := range ptrs {
		t.Delete(cs.Blobs, ptr)
	}
	tx.tx.truncated = append(tx.tx.truncated, tableID)
	return nil
}

// Insert buffers a row into this transaction's scratch table for tableID.
// If the table declares a sequence on a column whose value is zero (spec.md
// §4.3's is_sequence_trigger test), that column is first overwritten with
// the sequence's next value.
func (tx *MutTx) Insert(tableID uint32, row catalog.AlgebraicValue) (table.RowPointer, error) {
	schema, err := tx.schemaOf(tableID)
	if err != nil {
		return table.RowPointer{}, err
	}
	for _, seq := range schema.Sequences {
		if row.Elements[seq.ColPos].IsZeroForSequence() {
			next, err := tx.ds.sequences.NextValue(seq.SequenceID)
			if err != nil {
				return table.RowPointer{}, err
			}
			// Keep the column's own kind so the value is stored in the field
			// (U64 or I64) the page layout reads for that kind.
			v := row.Elements[seq.ColPos]
			switch v.Kind {
			case catalog.KindU8, catalog.KindU16, catalog.KindU32, catalog.KindU64:
				v.U64 = uint64(next)
			case catalog.KindI8, catalog.KindI16, catalog.KindI32, catalog.KindI64:
				v.I64 = next
			default:
				v = catalog.I64Value(next)
			}
			row.Elements[seq.ColPos] = v
		}
	}
	scratch := tx.tx.insertTable(schema)
	ptr, err := scratch.Insert(tx.tx.Blobs, row)
	if err != nil {
		return table.RowPointer{}, err
	}
	return ptr, nil
}

// Delete removes a row, whether it was already committed or only inserted
// earlier in this same transaction.
func (tx *MutTx) Delete(tableID uint32, ptr table.RowPointer) bool {
	if scratch, ok := tx.tx.InsertTables[tableID]; ok {
		if _, ok := scratch.Delete(tx.tx.Blobs, ptr); ok {
			return true
		}
	}
	if _, ok := tx.ds.committed.Tables[tableID]; ok {
		tx.tx.markDeleted(tableID, ptr)
		return true
	}
	return false
}

// DeleteByRel deletes a row structurally equal to row, searching committed
// rows not already marked deleted and this transaction's own inserts.
func (tx *MutTx) DeleteByRel(tableID uint32, row catalog.AlgebraicValue) bool {
	if scratch, ok := tx.tx.InsertTables[tableID]; ok {
		if _, ok := scratch.DeleteEqualRow(tx.tx.Blobs, row); ok {
			return true
		}
	}
	committed, ok := tx.ds.committed.Tables[tableID]
	if !ok {
		return false
	}
	found := false
	var foundPtr table.RowPointer
	committed.ScanRows(tx.ds.committed.Blobs, func(ptr table.RowPointer, candidate catalog.AlgebraicValue) bool {
		if tx.tx.isDeleted(tableID, ptr) {
			return true
		}
		if candidate.Equal(row) {
			found, foundPtr = true, ptr
			return false
		}
		return true
	})
	if found {
		tx.tx.markDeleted(tableID, foundPtr)
	}
	return found
}

// IterByColEq visits every live row (committed, minus this tx's pending
// deletes, plus this tx's own inserts) whose projection onto cols equals
// value.
func (tx *MutTx) IterByColEq(tableID uint32, cols catalog.ColList, value []catalog.AlgebraicValue, fn func(catalog.AlgebraicValue) bool) {
	matches := func(row catalog.AlgebraicValue) bool {
		for i, c := range cols {
			if !row.Elements[c].Equal(value[i]) {
				return false
			}
		}
		return true
	}
	cont := true
	if committed, ok := tx.ds.committed.Tables[tableID]; ok {
		committed.ScanRows(tx.ds.committed.Blobs, func(ptr table.RowPointer, row catalog.AlgebraicValue) bool {
			if tx.tx.isDeleted(tableID, ptr) {
				return true
			}
			if matches(row) {
				cont = fn(row)
			}
			return cont
		})
	}
	if !cont {
		return
	}
	if scratch, ok := tx.tx.InsertTables[tableID]; ok {
		scratch.ScanRows(tx.tx.Blobs, func(_ table.RowPointer, row catalog.AlgebraicValue) bool {
			if matches(row) {
				cont = fn(row)
			}
			return cont
		})
	}
}

// ScanAll visits every live row of tableID, committed plus this tx's own
// inserts, skipping pending deletes.
func (tx *MutTx) ScanAll(tableID uint32, fn func(catalog.AlgebraicValue) bool) {
	cont := true
	if committed, ok := tx.ds.committed.Tables[tableID]; ok {
		committed.ScanRows(tx.ds.committed.Blobs, func(ptr table.RowPointer, row catalog.AlgebraicValue) bool {
			if tx.tx.isDeleted(tableID, ptr) {
				return true
			}
			cont = fn(row)
			return cont
		})
	}
	if !cont {
		return
	}
	if scratch, ok := tx.tx.InsertTables[tableID]; ok {
		scratch.ScanRows(tx.tx.Blobs, func(_ table.RowPointer, row catalog.AlgebraicValue) bool {
			cont = fn(row)
			return cont
		})
	}
}

// Commit merges this transaction's deltas into the owning Datastore's
// CommittedState, deletes first then inserts (so inserts can reuse freed
// page slots), and returns the TxData the commit log and subscription
// engine both consume.
func (tx *MutTx) Commit() (*TxData, error) {
	if tx.done {
		return nil, nil
	}
	tx.done = true
	data := &TxData{}
	cs := tx.ds.committed

	for tableID, ptrs := range tx.tx.DeleteTables {
		t, ok := cs.Tables[tableID]
		if !ok {
			continue
		}
		for ptr := range ptrs {
			row, ok := t.Delete(cs.Blobs, ptr)
			if !ok {
				continue
			}
			data.Records = append(data.Records, TxRecord{Op: TxOpDelete, TableID: tableID, TableName: t.Schema.TableName, Row: row})
		}
	}

	for tableID, scratch := range tx.tx.InsertTables {
		t, ok := cs.Tables[tableID]
		if !ok {
			continue
		}
		scratch.ScanRows(tx.tx.Blobs, func(_ table.RowPointer, row catalog.AlgebraicValue) bool {
			if _, err := t.Insert(cs.Blobs, row); err == nil {
				data.Records = append(data.Records, TxRecord{Op: TxOpInsert, TableID: tableID, TableName: t.Schema.TableName, Row: row})
			}
			return true
		})
	}

	for _, tableID := range tx.tx.truncated {
		if t, ok := cs.Tables[tableID]; ok {
			data.Truncates = append(data.Truncates, TruncateRecord{TableID: tableID, TableName: t.Schema.TableName})
		}
	}

	return data, nil
}

// RowTypes returns a RowTypeLookup closed over this transaction's
// CommittedState, for building the CommitRecord the caller appends to the
// commit log after Commit returns. Valid only while the write lock is still
// held (i.e. before EndTx), since it reads tx.ds.committed.Tables directly.
func (tx *MutTx) RowTypes() RowTypeLookup {
	cs := tx.ds.committed
	return func(tableID uint32) (catalog.AlgebraicType, bool) {
		t, ok := cs.Tables[tableID]
		if !ok {
			return catalog.AlgebraicType{}, false
		}
		return t.Schema.RowType(), true
	}
}

// Rollback discards every buffered insert and pending delete; CommittedState
// was never touched by row operations, so nothing more is needed.
func (tx *MutTx) Rollback() {
	tx.done = true
}
