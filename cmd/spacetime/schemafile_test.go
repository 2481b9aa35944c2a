package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/spacetime/internal/catalog"
)

const personYAML = `
tables:
  - name: person
    access: public
    columns:
      - name: id
        type: u64
      - name: name
        type: string
    indexes:
      - name: person_id_idx
        columns: [id]
        unique: true
    sequences:
      - column: id
        start: 1
        min: 1
        max: 1000000
        increment: 1
`

func writeSchemaFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadDatabaseDef_ParsesTableColumnsIndexesAndSequences(t *testing.T) {
	path := writeSchemaFile(t, personYAML)
	def, err := loadDatabaseDef(path)
	require.NoError(t, err)

	table, ok := def.Tables["person"]
	require.True(t, ok)
	assert.Equal(t, catalog.AccessPublic, table.Access)
	require.Len(t, table.Columns, 2)
	assert.Equal(t, "id", table.Columns[0].ColName)
	assert.Equal(t, catalog.Primitive(catalog.KindU64), table.Columns[0].ColType)

	require.Len(t, table.Indexes, 1)
	assert.Equal(t, catalog.ColList{0}, table.Indexes[0].Columns)
	assert.True(t, table.Indexes[0].IsUnique)

	require.Len(t, table.Sequences, 1)
	assert.Equal(t, 0, table.Sequences[0].ColPos)
	assert.Equal(t, int64(1), table.Sequences[0].Start)
}

func TestLoadDatabaseDef_UnknownIndexColumnErrors(t *testing.T) {
	path := writeSchemaFile(t, `
tables:
  - name: person
    columns:
      - name: id
        type: u64
    indexes:
      - name: bad_idx
        columns: [missing_col]
`)
	_, err := loadDatabaseDef(path)
	assert.Error(t, err)
}

func TestLoadDatabaseDef_MissingFileErrors(t *testing.T) {
	_, err := loadDatabaseDef(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
