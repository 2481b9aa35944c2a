package migrate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/spacetime/internal/catalog"
	"github.com/cuemby/spacetime/internal/migrate"
)

func applesSchema() *catalog.TableSchema {
	return &catalog.TableSchema{
		TableName: "apples",
		Access:    catalog.AccessPublic,
		TableType: catalog.TableTypeUser,
		Columns: []catalog.ColumnDef{
			{ColPos: 0, ColName: "id", ColType: catalog.Primitive(catalog.KindU64)},
			{ColPos: 1, ColName: "name", ColType: catalog.Primitive(catalog.KindString)},
			{ColPos: 2, ColName: "count", ColType: catalog.Primitive(catalog.KindU16)},
		},
		Indexes: []catalog.IndexDef{
			{IndexID: 1, Columns: catalog.ColList{0}, IndexType: catalog.IndexTypeBTree, IsUnique: true, IndexName: "apples_id_idx"},
		},
		Sequences: []catalog.SequenceDef{
			{SequenceID: 1, ColPos: 0, Start: 1, Min: 1, Max: 1 << 40, Increment: 1},
		},
	}
}

func TestPlanMigration_NoChangeProducesEmptyPlan(t *testing.T) {
	old := &migrate.DatabaseDef{Tables: map[string]*catalog.TableSchema{"apples": applesSchema()}}
	new := &migrate.DatabaseDef{Tables: map[string]*catalog.TableSchema{"apples": applesSchema()}}

	plan, err := migrate.PlanMigration(old, new)
	require.NoError(t, err)
	assert.Empty(t, plan.Steps)
	assert.Empty(t, plan.Prechecks)
}

func TestPlanMigration_AddedTablePlansAddTableStep(t *testing.T) {
	old := &migrate.DatabaseDef{Tables: map[string]*catalog.TableSchema{}}
	new := &migrate.DatabaseDef{Tables: map[string]*catalog.TableSchema{"apples": applesSchema()}}

	plan, err := migrate.PlanMigration(old, new)
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, migrate.AddTable, plan.Steps[0].Kind)
	assert.Equal(t, "apples", plan.Steps[0].Table)
}

func TestPlanMigration_RemovedTableRequiresManualMigration(t *testing.T) {
	old := &migrate.DatabaseDef{Tables: map[string]*catalog.TableSchema{"apples": applesSchema()}}
	new := &migrate.DatabaseDef{Tables: map[string]*catalog.TableSchema{}}

	_, err := migrate.PlanMigration(old, new)
	require.Error(t, err)
	errs, ok := err.(migrate.Errors)
	require.True(t, ok)
	require.Len(t, errs, 1)
	assert.Equal(t, migrate.RemoveTableRequiresManual, errs[0].Kind)
}

func TestPlanMigration_AddedColumnRequiresManualMigration(t *testing.T) {
	old := &migrate.DatabaseDef{Tables: map[string]*catalog.TableSchema{"apples": applesSchema()}}
	newSchema := applesSchema()
	newSchema.Columns = append(newSchema.Columns, catalog.ColumnDef{ColPos: 3, ColName: "color", ColType: catalog.Primitive(catalog.KindString)})
	new := &migrate.DatabaseDef{Tables: map[string]*catalog.TableSchema{"apples": newSchema}}

	_, err := migrate.PlanMigration(old, new)
	require.Error(t, err)
	errs := err.(migrate.Errors)
	require.Len(t, errs, 1)
	assert.Equal(t, migrate.AddColumnRequiresManual, errs[0].Kind)
	assert.Equal(t, "color", errs[0].Column)
}

func TestPlanMigration_AddedIndexPlansAddIndexStep(t *testing.T) {
	old := &migrate.DatabaseDef{Tables: map[string]*catalog.TableSchema{"apples": applesSchema()}}
	newSchema := applesSchema()
	newSchema.Indexes = append(newSchema.Indexes, catalog.IndexDef{
		IndexID: 2, Columns: catalog.ColList{1}, IndexType: catalog.IndexTypeBTree, IndexName: "apples_name_idx",
	})
	new := &migrate.DatabaseDef{Tables: map[string]*catalog.TableSchema{"apples": newSchema}}

	plan, err := migrate.PlanMigration(old, new)
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, migrate.AddIndex, plan.Steps[0].Kind)
	assert.Equal(t, "apples_name_idx", plan.Steps[0].IndexName)
}

func TestPlanMigration_AddedSequenceEmitsPrecheck(t *testing.T) {
	old := &migrate.DatabaseDef{Tables: map[string]*catalog.TableSchema{"apples": applesSchema()}}
	newSchema := applesSchema()
	newSchema.Sequences = append(newSchema.Sequences, catalog.SequenceDef{SequenceID: 2, ColPos: 2, Start: 1, Min: 0, Max: 1000, Increment: 1})
	new := &migrate.DatabaseDef{Tables: map[string]*catalog.TableSchema{"apples": newSchema}}

	plan, err := migrate.PlanMigration(old, new)
	require.NoError(t, err)
	require.Len(t, plan.Prechecks, 1)
	assert.Equal(t, migrate.CheckAddSequenceRangeValid, plan.Prechecks[0].Kind)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, migrate.AddSequence, plan.Steps[0].Kind)
}

func TestPlanMigration_ChangedColumnTypeRequiresManualMigration(t *testing.T) {
	old := &migrate.DatabaseDef{Tables: map[string]*catalog.TableSchema{"apples": applesSchema()}}
	newSchema := applesSchema()
	newSchema.Columns[2].ColType = catalog.Primitive(catalog.KindU32)
	new := &migrate.DatabaseDef{Tables: map[string]*catalog.TableSchema{"apples": newSchema}}

	_, err := migrate.PlanMigration(old, new)
	require.Error(t, err)
	errs := err.(migrate.Errors)
	require.Len(t, errs, 1)
	assert.Equal(t, migrate.ChangeColumnTypeRequiresManual, errs[0].Kind)
}
