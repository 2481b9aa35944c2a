package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/spacetime/internal/catalog"
	"github.com/cuemby/spacetime/internal/page"
)

func personSchema() *catalog.TableSchema {
	reg := catalog.NewTypeRegistry()
	s := &catalog.TableSchema{
		TableID:   catalog.FirstUserTableID,
		TableName: "person",
		Access:    catalog.AccessPublic,
		TableType: catalog.TableTypeUser,
		Columns: []catalog.ColumnDef{
			{ColPos: 0, ColName: "id", ColType: catalog.Primitive(catalog.KindU64)},
			{ColPos: 1, ColName: "name", ColType: catalog.Primitive(catalog.KindString)},
		},
		Indexes: []catalog.IndexDef{
			{IndexID: 1, Columns: catalog.ColList{0}, IndexType: catalog.IndexTypeBTree, IsUnique: true, IndexName: "person_id_idx"},
		},
	}
	s.ProductTypeRef = reg.Intern(s.RowType())
	return s
}

func TestTable_InsertGetDelete(t *testing.T) {
	tbl := NewTable(personSchema())
	blobs := page.NewBlobStore()

	row := catalog.ProductValue(catalog.U64Value(1), catalog.StringValue("grace"))
	ptr, err := tbl.Insert(blobs, row)
	require.NoError(t, err)
	assert.Equal(t, 1, tbl.RowCount())

	got, err := tbl.Get(blobs, ptr)
	require.NoError(t, err)
	assert.True(t, row.Equal(got))

	deleted, ok := tbl.Delete(blobs, ptr)
	require.True(t, ok)
	assert.True(t, row.Equal(deleted))
	assert.Equal(t, 0, tbl.RowCount())
}

func TestTable_UniqueIndexRejectsDuplicate(t *testing.T) {
	tbl := NewTable(personSchema())
	blobs := page.NewBlobStore()

	row1 := catalog.ProductValue(catalog.U64Value(1), catalog.StringValue("grace"))
	row2 := catalog.ProductValue(catalog.U64Value(1), catalog.StringValue("ada"))

	ptr1, err := tbl.Insert(blobs, row1)
	require.NoError(t, err)

	_, err = tbl.Insert(blobs, row2)
	require.Error(t, err)
	var dupErr *InsertError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, ptr1, *dupErr.Duplicate)
}

func TestTable_ScanRows(t *testing.T) {
	tbl := NewTable(personSchema())
	blobs := page.NewBlobStore()

	for i := uint64(1); i <= 5; i++ {
		_, err := tbl.Insert(blobs, catalog.ProductValue(catalog.U64Value(i), catalog.StringValue("n")))
		require.NoError(t, err)
	}

	count := 0
	tbl.ScanRows(blobs, func(ptr RowPointer, row catalog.AlgebraicValue) bool {
		count++
		return true
	})
	assert.Equal(t, 5, count)
}

func TestTable_IndexSeekRange(t *testing.T) {
	tbl := NewTable(personSchema())
	blobs := page.NewBlobStore()

	for i := uint64(1); i <= 10; i++ {
		_, err := tbl.Insert(blobs, catalog.ProductValue(catalog.U64Value(i), catalog.StringValue("n")))
		require.NoError(t, err)
	}

	ptrs := tbl.IndexSeek(1, Range{
		Lo:          []catalog.AlgebraicValue{catalog.U64Value(3)},
		LoInclusive: true,
		Hi:          []catalog.AlgebraicValue{catalog.U64Value(6)},
		HiInclusive: false,
	})
	assert.Len(t, ptrs, 3) // 3, 4, 5
}

func TestTable_DeleteEqualRow(t *testing.T) {
	tbl := NewTable(personSchema())
	blobs := page.NewBlobStore()

	row := catalog.ProductValue(catalog.U64Value(42), catalog.StringValue("turing"))
	_, err := tbl.Insert(blobs, row)
	require.NoError(t, err)

	ptr, ok := tbl.DeleteEqualRow(blobs, row)
	require.True(t, ok)
	assert.False(t, ptr.IsNull())
	assert.Equal(t, 0, tbl.RowCount())
}
