package datastore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/spacetime/internal/catalog"
)

func personSchema() *catalog.TableSchema {
	return &catalog.TableSchema{
		TableName: "person",
		Access:    catalog.AccessPublic,
		TableType: catalog.TableTypeUser,
		Columns: []catalog.ColumnDef{
			{ColPos: 0, ColName: "id", ColType: catalog.Primitive(catalog.KindU64)},
			{ColPos: 1, ColName: "name", ColType: catalog.Primitive(catalog.KindString)},
		},
		Indexes: []catalog.IndexDef{
			{IndexID: 100, Columns: catalog.ColList{0}, IndexType: catalog.IndexTypeBTree, IsUnique: true, IndexName: "person_id_idx"},
		},
		Sequences: []catalog.SequenceDef{
			{SequenceID: 200, ColPos: 0, Start: 1, Min: 1, Max: 1 << 40, Increment: 1, Allocated: 0},
		},
	}
}

func newBootstrapped(t *testing.T) *Datastore {
	t.Helper()
	ds := New()
	require.NoError(t, ds.Bootstrap())
	return ds
}

func TestBootstrap_SystemTablesDescribeThemselves(t *testing.T) {
	ds := newBootstrapped(t)
	counts := ds.TableRowCounts()
	assert.Equal(t, int64(6), counts["st_tables"])
	assert.Greater(t, counts["st_columns"], int64(0))
}

func TestCreateTable_RegistersSchemaAndCatalogRows(t *testing.T) {
	ds := newBootstrapped(t)
	tx := ds.BeginMutTx()
	id, err := tx.CreateTable(personSchema())
	require.NoError(t, err)
	assert.Equal(t, catalog.FirstUserTableID, id)
	_, err = tx.Commit()
	require.NoError(t, err)
	ds.EndTx(tx)

	counts := ds.TableRowCounts()
	assert.Equal(t, int64(7), counts["st_tables"]) // 6 system tables + person
	assert.Contains(t, counts, "person")
}

func TestInsertAndCommit_VisibleAfterCommit(t *testing.T) {
	ds := newBootstrapped(t)
	tx := ds.BeginMutTx()
	tableID, err := tx.CreateTable(personSchema())
	require.NoError(t, err)
	_, err = tx.Insert(tableID, catalog.ProductValue(catalog.U64Value(0), catalog.StringValue("alice")))
	require.NoError(t, err)
	data, err := tx.Commit()
	require.NoError(t, err)
	ds.EndTx(tx)

	var insertCount int
	for _, rec := range data.Records {
		if rec.Op == TxOpInsert && rec.TableName == "person" {
			insertCount++
		}
	}
	assert.Equal(t, 1, insertCount)

	tx2 := ds.BeginMutTx()
	var seen []string
	tx2.ScanAll(tableID, func(row catalog.AlgebraicValue) bool {
		seen = append(seen, row.Elements[1].Str)
		return true
	})
	tx2.Rollback()
	ds.EndTx(tx2)
	assert.Equal(t, []string{"alice"}, seen)
}

func TestInsert_SequenceAssignsIncrementingIDs(t *testing.T) {
	ds := newBootstrapped(t)
	tx := ds.BeginMutTx()
	tableID, err := tx.CreateTable(personSchema())
	require.NoError(t, err)
	p1, err := tx.Insert(tableID, catalog.ProductValue(catalog.U64Value(0), catalog.StringValue("a")))
	require.NoError(t, err)
	p2, err := tx.Insert(tableID, catalog.ProductValue(catalog.U64Value(0), catalog.StringValue("b")))
	require.NoError(t, err)
	_, err = tx.Commit()
	require.NoError(t, err)
	ds.EndTx(tx)

	tx2 := ds.BeginMutTx()
	var ids []uint64
	tx2.ScanAll(tableID, func(row catalog.AlgebraicValue) bool {
		ids = append(ids, row.Elements[0].U64)
		return true
	})
	tx2.Rollback()
	ds.EndTx(tx2)
	assert.ElementsMatch(t, []uint64{1, 2}, ids)
	_ = p1
	_ = p2
}

func TestDelete_RemovesCommittedRow(t *testing.T) {
	ds := newBootstrapped(t)
	tx := ds.BeginMutTx()
	tableID, err := tx.CreateTable(personSchema())
	require.NoError(t, err)
	ptr, err := tx.Insert(tableID, catalog.ProductValue(catalog.U64Value(0), catalog.StringValue("alice")))
	require.NoError(t, err)
	_, err = tx.Commit()
	require.NoError(t, err)
	ds.EndTx(tx)

	tx2 := ds.BeginMutTx()
	ok := tx2.Delete(tableID, ptr)
	assert.True(t, ok)
	_, err = tx2.Commit()
	require.NoError(t, err)
	ds.EndTx(tx2)

	tx3 := ds.BeginMutTx()
	var seen int
	tx3.ScanAll(tableID, func(row catalog.AlgebraicValue) bool {
		seen++
		return true
	})
	tx3.Rollback()
	ds.EndTx(tx3)
	assert.Equal(t, 0, seen)
}

func TestRollback_DiscardsUncommittedInsert(t *testing.T) {
	ds := newBootstrapped(t)
	tx := ds.BeginMutTx()
	tableID, err := tx.CreateTable(personSchema())
	require.NoError(t, err)
	_, err = tx.Commit()
	require.NoError(t, err)
	ds.EndTx(tx)

	tx2 := ds.BeginMutTx()
	_, err = tx2.Insert(tableID, catalog.ProductValue(catalog.U64Value(0), catalog.StringValue("ghost")))
	require.NoError(t, err)
	tx2.Rollback()
	ds.EndTx(tx2)

	tx3 := ds.BeginMutTx()
	var seen int
	tx3.ScanAll(tableID, func(row catalog.AlgebraicValue) bool {
		seen++
		return true
	})
	tx3.Rollback()
	ds.EndTx(tx3)
	assert.Equal(t, 0, seen)
}

func TestIterByColEq_MatchesAcrossCommittedAndTxLocalRows(t *testing.T) {
	ds := newBootstrapped(t)
	tx := ds.BeginMutTx()
	tableID, err := tx.CreateTable(personSchema())
	require.NoError(t, err)
	_, err = tx.Insert(tableID, catalog.ProductValue(catalog.U64Value(0), catalog.StringValue("alice")))
	require.NoError(t, err)
	_, err = tx.Commit()
	require.NoError(t, err)
	ds.EndTx(tx)

	tx2 := ds.BeginMutTx()
	_, err = tx2.Insert(tableID, catalog.ProductValue(catalog.U64Value(0), catalog.StringValue("bob")))
	require.NoError(t, err)
	var names []string
	tx2.IterByColEq(tableID, catalog.ColList{1}, []catalog.AlgebraicValue{catalog.StringValue("bob")}, func(row catalog.AlgebraicValue) bool {
		names = append(names, row.Elements[1].Str)
		return true
	})
	tx2.Rollback()
	ds.EndTx(tx2)
	assert.Equal(t, []string{"bob"}, names)
}

func TestDropTable_RemovesCatalogRows(t *testing.T) {
	ds := newBootstrapped(t)
	tx := ds.BeginMutTx()
	tableID, err := tx.CreateTable(personSchema())
	require.NoError(t, err)
	_, err = tx.Commit()
	require.NoError(t, err)
	ds.EndTx(tx)

	tx2 := ds.BeginMutTx()
	require.NoError(t, tx2.DropTable(tableID))
	_, err = tx2.Commit()
	require.NoError(t, err)
	ds.EndTx(tx2)

	counts := ds.TableRowCounts()
	assert.NotContains(t, counts, "person")
}
