// Package datastore implements the engine's multi-version transaction
// manager: CommittedState (the durable snapshot), TxState (one
// transaction's uncommitted insert/delete deltas), SequencesState
// (auto-increment counters with batch pre-allocation), and MutTx (the
// read-write handle user code and replay both go through).
//
// Grounded on original_source/.../committed_state.rs, tx_state.rs,
// sequence.rs, datastore.rs for the state shapes and merge-on-commit
// order (deletes before inserts); on the teacher's pkg/manager/fsm.go for
// the Command/Apply dispatch idiom MutTx's catalog operations follow; and
// on pkg/storage/store.go for the explicit, typed-error CRUD discipline.
package datastore

import (
	"fmt"
	"sort"

	"github.com/cuemby/spacetime/internal/catalog"
	"github.com/cuemby/spacetime/internal/page"
	"github.com/cuemby/spacetime/internal/table"
)

// CommittedState is the database's state as of the last successful commit.
type CommittedState struct {
	Tables map[uint32]*table.Table
	Blobs  *page.BlobStore
	NextID uint32 // next TableID to assign to a user-created table
}

func NewCommittedState() *CommittedState {
	return &CommittedState{
		Tables: make(map[uint32]*table.Table),
		Blobs:  page.NewBlobStore(),
		NextID: catalog.FirstUserTableID,
	}
}

// BootstrapSystemTables creates all six system tables and fills st_tables,
// st_columns and st_indexes with rows describing them (st_sequences gets a
// row for each system-table sequence, of which there are none).
// st_constraints and st_module stay empty.
// Does not run inside a transaction, matching the original's comment that
// bootstrapping is deliberately excluded from the commit log.
func (cs *CommittedState) BootstrapSystemTables() error {
	for _, schema := range systemTableSchemas() {
		cs.Tables[schema.TableID] = table.NewTable(schema)
	}
	stTables := cs.Tables[catalog.StTablesID]
	stColumns := cs.Tables[catalog.StColumnsID]
	stIndexes := cs.Tables[catalog.StIndexesID]
	stSequences := cs.Tables[catalog.StSequencesID]

	for _, schema := range systemTableSchemas() {
		if _, err := stTables.Insert(cs.Blobs, stTableRow(schema)); err != nil {
			return fmt.Errorf("datastore: bootstrap st_tables: %w", err)
		}
		for _, row := range stColumnRows(schema) {
			if _, err := stColumns.Insert(cs.Blobs, row); err != nil {
				return fmt.Errorf("datastore: bootstrap st_columns: %w", err)
			}
		}
		for _, row := range stIndexRows(schema) {
			if _, err := stIndexes.Insert(cs.Blobs, row); err != nil {
				return fmt.Errorf("datastore: bootstrap st_indexes: %w", err)
			}
		}
		for _, row := range stSequenceRows(schema) {
			if _, err := stSequences.Insert(cs.Blobs, row); err != nil {
				return fmt.Errorf("datastore: bootstrap st_sequences: %w", err)
			}
		}
	}
	return nil
}

// BuildSequenceState reconstructs in-memory Sequence counters from the rows
// persisted in st_sequences, used after replaying a commit log.
func (cs *CommittedState) BuildSequenceState(seqs *SequencesState) error {
	stSequences, ok := cs.Tables[catalog.StSequencesID]
	if !ok {
		return fmt.Errorf("datastore: st_sequences missing during replay")
	}
	var outerErr error
	stSequences.ScanRows(cs.Blobs, func(_ table.RowPointer, row catalog.AlgebraicValue) bool {
		sequenceID := uint32(row.Elements[0].U64)
		tableID := uint32(row.Elements[1].U64)
		colPos := int(row.Elements[2].U64)
		increment := row.Elements[3].I64
		start := row.Elements[4].I64
		min := row.Elements[5].I64
		max := row.Elements[6].I64
		allocated := row.Elements[7].I64

		def := catalog.SequenceDef{SequenceID: sequenceID, ColPos: colPos, Start: start, Min: min, Max: max, Increment: increment, Allocated: allocated}
		seq := &Sequence{Def: def, Value: allocated + increment}
		if t, ok := cs.Tables[tableID]; ok && t.Schema.TableType == catalog.TableTypeSystem {
			seq.Value = start
		}
		seqs.insert(sequenceID, seq)
		return true
	})
	return outerErr
}

// BuildIndexes is a no-op after replay: table.NewTable creates each table's
// indexes from its schema, and replayed rows are indexed as they are
// inserted, so st_indexes is not read here.
func (cs *CommittedState) BuildIndexes() error {
	return nil // table.NewTable already builds indexes from its schema; nothing to rebuild post-replay in this simplified model.
}

// BuildMissingTables ensures a Table exists in memory for every row present
// in st_tables, even ones with zero rows (which wouldn't otherwise appear
// during insert-only replay).
func (cs *CommittedState) BuildMissingTables(schemaFor func(tableID uint32) (*catalog.TableSchema, error)) error {
	stTables, ok := cs.Tables[catalog.StTablesID]
	if !ok {
		return fmt.Errorf("datastore: st_tables missing during replay")
	}
	var missing []uint32
	stTables.ScanRows(cs.Blobs, func(_ table.RowPointer, row catalog.AlgebraicValue) bool {
		tableID := uint32(row.Elements[0].U64)
		if _, exists := cs.Tables[tableID]; !exists {
			missing = append(missing, tableID)
		}
		return true
	})
	for _, id := range missing {
		schema, err := schemaFor(id)
		if err != nil {
			return err
		}
		cs.Tables[id] = table.NewTable(schema)
	}
	return nil
}

// SchemaFor reconstructs a user table's TableSchema from the system-catalog
// rows persisted for it (st_tables/st_columns/st_indexes/st_sequences),
// matching BuildMissingTables's expected callback shape. Columns round-trip
// exactly since st_columns only ever stored a primitive TypeKind string
// (systemtables.go's stColumnRows); a column declared with a product, sum,
// array, or map type cannot be recovered this way, since the catalog does
// not persist compound type shapes into st_columns. st_indexes likewise
// only records index_id/table_id/index_name/is_unique, not which columns
// the index covers, so reconstructed indexes carry no Columns and will not
// usefully seek until the table is recreated fresh — a replay-only
// limitation.
func (cs *CommittedState) SchemaFor(tableID uint32) (*catalog.TableSchema, error) {
	stTables, ok := cs.Tables[catalog.StTablesID]
	if !ok {
		return nil, fmt.Errorf("datastore: st_tables missing during replay")
	}
	var schema *catalog.TableSchema
	stTables.ScanRows(cs.Blobs, func(_ table.RowPointer, row catalog.AlgebraicValue) bool {
		if uint32(row.Elements[0].U64) != tableID {
			return true
		}
		schema = &catalog.TableSchema{
			TableID:   tableID,
			TableName: row.Elements[1].Str,
			TableType: catalog.TableType(row.Elements[2].Str),
			Access:    catalog.AccessLevel(row.Elements[3].Str),
		}
		return false
	})
	if schema == nil {
		return nil, fmt.Errorf("datastore: no st_tables row for table %d", tableID)
	}

	stColumns, ok := cs.Tables[catalog.StColumnsID]
	if !ok {
		return nil, fmt.Errorf("datastore: st_columns missing during replay")
	}
	type colRow struct {
		pos  int
		name string
		kind catalog.TypeKind
	}
	var cols []colRow
	stColumns.ScanRows(cs.Blobs, func(_ table.RowPointer, row catalog.AlgebraicValue) bool {
		if uint32(row.Elements[0].U64) != tableID {
			return true
		}
		cols = append(cols, colRow{
			pos:  int(row.Elements[1].U64),
			name: row.Elements[2].Str,
			kind: catalog.TypeKind(row.Elements[3].Str),
		})
		return true
	})
	sort.Slice(cols, func(i, j int) bool { return cols[i].pos < cols[j].pos })
	schema.Columns = make([]catalog.ColumnDef, len(cols))
	for i, c := range cols {
		schema.Columns[i] = catalog.ColumnDef{ColPos: c.pos, ColName: c.name, ColType: catalog.Primitive(c.kind)}
	}

	if stIndexes, ok := cs.Tables[catalog.StIndexesID]; ok {
		stIndexes.ScanRows(cs.Blobs, func(_ table.RowPointer, row catalog.AlgebraicValue) bool {
			if uint32(row.Elements[1].U64) != tableID {
				return true
			}
			schema.Indexes = append(schema.Indexes, catalog.IndexDef{
				IndexID:   uint32(row.Elements[0].U64),
				IndexName: row.Elements[2].Str,
				IsUnique:  row.Elements[3].Bool,
				IndexType: catalog.IndexTypeBTree,
			})
			return true
		})
	}

	if stSequences, ok := cs.Tables[catalog.StSequencesID]; ok {
		stSequences.ScanRows(cs.Blobs, func(_ table.RowPointer, row catalog.AlgebraicValue) bool {
			if uint32(row.Elements[1].U64) != tableID {
				return true
			}
			schema.Sequences = append(schema.Sequences, catalog.SequenceDef{
				SequenceID: uint32(row.Elements[0].U64),
				ColPos:     int(row.Elements[2].U64),
				Increment:  row.Elements[3].I64,
				Start:      row.Elements[4].I64,
				Min:        row.Elements[5].I64,
				Max:        row.Elements[6].I64,
				Allocated:  row.Elements[7].I64,
			})
			return true
		})
	}

	return schema, nil
}

// TableRowCounts provides metrics.StatsSource's row counts.
func (cs *CommittedState) TableRowCounts() map[string]int64 {
	out := make(map[string]int64, len(cs.Tables))
	for _, t := range cs.Tables {
		out[t.Schema.TableName] = int64(t.RowCount())
	}
	return out
}
