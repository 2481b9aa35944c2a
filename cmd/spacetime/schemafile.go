package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/spacetime/internal/catalog"
	"github.com/cuemby/spacetime/internal/migrate"
)

// schemaFileColumn/schemaFileIndex/schemaFileSequence/schemaFileTable mirror
// catalog's definitions but restrict ColType to a primitive kind name,
// since expressing a nested product/sum/array/map type on the CLI's YAML
// surface would need a small type-expression grammar of its own; a module
// declaring a composite column type is migrate-plan'd by loading its
// TableSchema directly through Go code instead, not this file format.
type schemaFileColumn struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

type schemaFileIndex struct {
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns"`
	Unique  bool     `yaml:"unique"`
}

type schemaFileSequence struct {
	Column    string `yaml:"column"`
	Start     int64  `yaml:"start"`
	Min       int64  `yaml:"min"`
	Max       int64  `yaml:"max"`
	Increment int64  `yaml:"increment"`
}

type schemaFileTable struct {
	Name      string               `yaml:"name"`
	Access    string               `yaml:"access"`
	Columns   []schemaFileColumn   `yaml:"columns"`
	Indexes   []schemaFileIndex   `yaml:"indexes"`
	Sequences []schemaFileSequence `yaml:"sequences"`
}

type schemaFile struct {
	Tables []schemaFileTable `yaml:"tables"`
}

// loadDatabaseDef reads a YAML file describing a module's tables and
// builds the migrate.DatabaseDef that PlanMigration diffs.
func loadDatabaseDef(path string) (*migrate.DatabaseDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("spacetime: read schema file %s: %w", path, err)
	}
	var sf schemaFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("spacetime: parse schema file %s: %w", path, err)
	}

	def := &migrate.DatabaseDef{Tables: make(map[string]*catalog.TableSchema, len(sf.Tables))}
	for _, t := range sf.Tables {
		colPos := make(map[string]int, len(t.Columns))
		columns := make([]catalog.ColumnDef, len(t.Columns))
		for i, c := range t.Columns {
			columns[i] = catalog.ColumnDef{ColPos: i, ColName: c.Name, ColType: catalog.Primitive(catalog.TypeKind(c.Type))}
			colPos[c.Name] = i
		}

		access := catalog.AccessPublic
		if t.Access != "" {
			access = catalog.AccessLevel(t.Access)
		}

		schema := &catalog.TableSchema{
			TableName: t.Name,
			TableType: catalog.TableTypeUser,
			Access:    access,
			Columns:   columns,
		}

		for _, idx := range t.Indexes {
			cols, err := resolveColumns(t.Name, colPos, idx.Columns)
			if err != nil {
				return nil, err
			}
			schema.Indexes = append(schema.Indexes, catalog.IndexDef{
				IndexName: idx.Name,
				Columns:   cols,
				IndexType: catalog.IndexTypeBTree,
				IsUnique:  idx.Unique,
			})
		}
		for _, seq := range t.Sequences {
			pos, ok := colPos[seq.Column]
			if !ok {
				return nil, fmt.Errorf("spacetime: table %s: sequence references unknown column %q", t.Name, seq.Column)
			}
			schema.Sequences = append(schema.Sequences, catalog.SequenceDef{
				ColPos: pos, Start: seq.Start, Min: seq.Min, Max: seq.Max, Increment: seq.Increment,
			})
		}

		def.Tables[t.Name] = schema
	}
	return def, nil
}

func resolveColumns(table string, colPos map[string]int, names []string) (catalog.ColList, error) {
	out := make(catalog.ColList, len(names))
	for i, name := range names {
		pos, ok := colPos[name]
		if !ok {
			return nil, fmt.Errorf("spacetime: table %s: index references unknown column %q", table, name)
		}
		out[i] = pos
	}
	return out, nil
}
