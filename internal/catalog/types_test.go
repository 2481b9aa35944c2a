package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func personSchema(registry *TypeRegistry) *TableSchema {
	s := &TableSchema{
		TableID:   FirstUserTableID,
		TableName: "person",
		Access:    AccessPublic,
		TableType: TableTypeUser,
		Columns: []ColumnDef{
			{ColPos: 0, ColName: "id", ColType: Primitive(KindU64)},
			{ColPos: 1, ColName: "name", ColType: Primitive(KindString)},
		},
		Indexes: []IndexDef{
			{IndexID: 1, Columns: ColList{0}, IndexType: IndexTypeBTree, IsUnique: true, IndexName: "person_id_idx"},
		},
		Sequences: []SequenceDef{
			{SequenceID: 1, ColPos: 0, Start: 1, Min: 1, Max: 1 << 62, Increment: 1},
		},
	}
	s.ProductTypeRef = registry.Intern(s.RowType())
	return s
}

func TestTableSchemaValidate(t *testing.T) {
	reg := NewTypeRegistry()
	s := personSchema(reg)
	require.NoError(t, s.Validate(reg))
}

func TestTableSchemaValidate_BadColPos(t *testing.T) {
	reg := NewTypeRegistry()
	s := personSchema(reg)
	s.Indexes[0].Columns = ColList{5}
	err := s.Validate(reg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out-of-range")
}

func TestTableSchemaValidate_ProductTypeRefMismatch(t *testing.T) {
	reg := NewTypeRegistry()
	s := personSchema(reg)
	// Point the ref at some other, structurally different type.
	s.ProductTypeRef = reg.Intern(Primitive(KindBool))
	err := s.Validate(reg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "product_type_ref")
}

func TestTypeRegistryCycleDetection(t *testing.T) {
	reg := NewTypeRegistry()
	idx := reg.Intern(AlgebraicType{}) // placeholder
	reg.types[idx] = Ref(idx)          // self-cycle
	_, err := reg.Resolve(Ref(idx))
	require.Error(t, err)
}

func TestAlgebraicValueCompareAndEqual(t *testing.T) {
	a := U64Value(1)
	b := U64Value(2)
	assert.Equal(t, -1, a.Compare(b))
	assert.True(t, a.Equal(U64Value(1)))
	assert.False(t, a.Equal(b))
}

func TestIsZeroForSequence(t *testing.T) {
	assert.True(t, U64Value(0).IsZeroForSequence())
	assert.False(t, U64Value(1).IsZeroForSequence())
	assert.False(t, StringValue("").IsZeroForSequence())
}
