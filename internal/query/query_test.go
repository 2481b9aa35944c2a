package query_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/spacetime/internal/catalog"
	"github.com/cuemby/spacetime/internal/datastore"
	"github.com/cuemby/spacetime/internal/query"
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
			{IndexID: 100, Columns: catalog.ColList{1}, IndexType: catalog.IndexTypeBTree, IsUnique: false, IndexName: "person_name_idx"},
		},
	}
}

func usersSchema() *catalog.TableSchema {
	return &catalog.TableSchema{
		TableName: "users",
		Access:    catalog.AccessPublic,
		TableType: catalog.TableTypeUser,
		Columns: []catalog.ColumnDef{
			{ColPos: 0, ColName: "id", ColType: catalog.Primitive(catalog.KindU64)},
		},
		Indexes: []catalog.IndexDef{
			{IndexID: 101, Columns: catalog.ColList{0}, IndexType: catalog.IndexTypeBTree, IsUnique: true, IndexName: "users_id_idx"},
		},
	}
}

func setup(t *testing.T) *datastore.Datastore {
	t.Helper()
	ds := datastore.New()
	require.NoError(t, ds.Bootstrap())
	tx := ds.BeginMutTx()
	_, err := tx.CreateTable(personSchema())
	require.NoError(t, err)
	_, err = tx.CreateTable(usersSchema())
	require.NoError(t, err)
	_, err = tx.Commit()
	require.NoError(t, err)
	ds.EndTx(tx)
	return ds
}

func TestTableScanAndFilter_LowersToIxScanOnIndexedColumn(t *testing.T) {
	ds := setup(t)
	tx := ds.BeginMutTx()
	schema, err := tx.Schema("person")
	require.NoError(t, err)
	_, err = tx.Insert(schema.TableID, catalog.ProductValue(catalog.U64Value(1), catalog.StringValue("a")))
	require.NoError(t, err)
	_, err = tx.Insert(schema.TableID, catalog.ProductValue(catalog.U64Value(2), catalog.StringValue("b")))
	require.NoError(t, err)
	_, err = tx.Commit()
	require.NoError(t, err)
	ds.EndTx(tx)

	rtx := ds.BeginReadTx()
	defer ds.EndReadTx(rtx)

	logical := &query.LogicalFilter{
		Input: &query.TableRef{TableName: "person", Alias: "person"},
		Expr: &query.Comparison{
			Op:    query.CmpEq,
			Left:  &query.ColumnRef{Alias: "person", Column: "name"},
			Right: &query.Literal{Value: catalog.StringValue("a")},
		},
	}
	phys, err := query.Lower(logical, query.DeltaNone, rtx)
	require.NoError(t, err)

	ixScan, ok := phys.(*query.IxScan)
	require.True(t, ok, "expected Filter on an indexed column to lower to IxScan, got %T", phys)
	assert.Equal(t, uint32(100), ixScan.IndexID)

	var got []string
	query.Execute(phys, query.CommittedSource{Tx: rtx}, query.Metrics{}, func(rows []catalog.AlgebraicValue) bool {
		got = append(got, rows[0].Elements[1].Str)
		return true
	})
	assert.Equal(t, []string{"a"}, got)
}

func TestIxJoin_SemiLhsFiltersByExistenceOfMatch(t *testing.T) {
	ds := setup(t)
	tx := ds.BeginMutTx()
	personSchema, err := tx.Schema("person")
	require.NoError(t, err)
	usersSchema, err := tx.Schema("users")
	require.NoError(t, err)
	_, err = tx.Insert(personSchema.TableID, catalog.ProductValue(catalog.U64Value(1), catalog.StringValue("a")))
	require.NoError(t, err)
	_, err = tx.Insert(personSchema.TableID, catalog.ProductValue(catalog.U64Value(2), catalog.StringValue("b")))
	require.NoError(t, err)
	_, err = tx.Insert(usersSchema.TableID, catalog.ProductValue(catalog.U64Value(1)))
	require.NoError(t, err)
	_, err = tx.Commit()
	require.NoError(t, err)
	ds.EndTx(tx)

	rtx := ds.BeginReadTx()
	defer ds.EndReadTx(rtx)

	logical := &query.LogicalJoin{
		Lhs:      &query.TableRef{TableName: "person", Alias: "person"},
		Rhs:      &query.TableRef{TableName: "users", Alias: "u"},
		LhsField: "id",
		RhsField: "id",
		Semi:     query.SemiLhs,
	}
	phys, err := query.Lower(logical, query.DeltaNone, rtx)
	require.NoError(t, err)
	_, ok := phys.(*query.IxJoin)
	require.True(t, ok, "expected join on a uniquely-indexed rhs column to lower to IxJoin, got %T", phys)

	var names []string
	query.Execute(phys, query.CommittedSource{Tx: rtx}, query.Metrics{}, func(rows []catalog.AlgebraicValue) bool {
		names = append(names, rows[0].Elements[1].Str)
		return true
	})
	assert.Equal(t, []string{"a"}, names)
}
