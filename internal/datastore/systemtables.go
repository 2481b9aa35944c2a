package datastore

import "github.com/cuemby/spacetime/internal/catalog"

// System catalog table schemas (spec.md §3): st_tables, st_columns,
// st_indexes, st_constraints, st_sequences, st_module. Grounded on
// original_source/.../system_tables.rs for the column layout of each.
func stTablesSchema() *catalog.TableSchema {
	return &catalog.TableSchema{
		TableID:   catalog.StTablesID,
		TableName: "st_tables",
		Access:    catalog.AccessPrivate,
		TableType: catalog.TableTypeSystem,
		Columns: []catalog.ColumnDef{
			{ColPos: 0, ColName: "table_id", ColType: catalog.Primitive(catalog.KindU32)},
			{ColPos: 1, ColName: "table_name", ColType: catalog.Primitive(catalog.KindString)},
			{ColPos: 2, ColName: "table_type", ColType: catalog.Primitive(catalog.KindString)},
			{ColPos: 3, ColName: "table_access", ColType: catalog.Primitive(catalog.KindString)},
		},
		Indexes: []catalog.IndexDef{
			{IndexID: 0, Columns: catalog.ColList{0}, IndexType: catalog.IndexTypeBTree, IsUnique: true, IndexName: "st_tables_table_id_idx"},
		},
	}
}

func stColumnsSchema() *catalog.TableSchema {
	return &catalog.TableSchema{
		TableID:   catalog.StColumnsID,
		TableName: "st_columns",
		Access:    catalog.AccessPrivate,
		TableType: catalog.TableTypeSystem,
		Columns: []catalog.ColumnDef{
			{ColPos: 0, ColName: "table_id", ColType: catalog.Primitive(catalog.KindU32)},
			{ColPos: 1, ColName: "col_pos", ColType: catalog.Primitive(catalog.KindU32)},
			{ColPos: 2, ColName: "col_name", ColType: catalog.Primitive(catalog.KindString)},
			{ColPos: 3, ColName: "col_type", ColType: catalog.Primitive(catalog.KindString)},
		},
	}
}

func stIndexesSchema() *catalog.TableSchema {
	return &catalog.TableSchema{
		TableID:   catalog.StIndexesID,
		TableName: "st_indexes",
		Access:    catalog.AccessPrivate,
		TableType: catalog.TableTypeSystem,
		Columns: []catalog.ColumnDef{
			{ColPos: 0, ColName: "index_id", ColType: catalog.Primitive(catalog.KindU32)},
			{ColPos: 1, ColName: "table_id", ColType: catalog.Primitive(catalog.KindU32)},
			{ColPos: 2, ColName: "index_name", ColType: catalog.Primitive(catalog.KindString)},
			{ColPos: 3, ColName: "is_unique", ColType: catalog.Primitive(catalog.KindBool)},
		},
	}
}

func stConstraintsSchema() *catalog.TableSchema {
	return &catalog.TableSchema{
		TableID:   catalog.StConstraintsID,
		TableName: "st_constraints",
		Access:    catalog.AccessPrivate,
		TableType: catalog.TableTypeSystem,
		Columns: []catalog.ColumnDef{
			{ColPos: 0, ColName: "constraint_id", ColType: catalog.Primitive(catalog.KindU32)},
			{ColPos: 1, ColName: "table_id", ColType: catalog.Primitive(catalog.KindU32)},
			{ColPos: 2, ColName: "constraint_name", ColType: catalog.Primitive(catalog.KindString)},
		},
	}
}

func stSequencesSchema() *catalog.TableSchema {
	return &catalog.TableSchema{
		TableID:   catalog.StSequencesID,
		TableName: "st_sequences",
		Access:    catalog.AccessPrivate,
		TableType: catalog.TableTypeSystem,
		Columns: []catalog.ColumnDef{
			{ColPos: 0, ColName: "sequence_id", ColType: catalog.Primitive(catalog.KindU32)},
			{ColPos: 1, ColName: "table_id", ColType: catalog.Primitive(catalog.KindU32)},
			{ColPos: 2, ColName: "col_pos", ColType: catalog.Primitive(catalog.KindU32)},
			{ColPos: 3, ColName: "increment", ColType: catalog.Primitive(catalog.KindI64)},
			{ColPos: 4, ColName: "start", ColType: catalog.Primitive(catalog.KindI64)},
			{ColPos: 5, ColName: "min_value", ColType: catalog.Primitive(catalog.KindI64)},
			{ColPos: 6, ColName: "max_value", ColType: catalog.Primitive(catalog.KindI64)},
			{ColPos: 7, ColName: "allocated", ColType: catalog.Primitive(catalog.KindI64)},
		},
	}
}

func stModuleSchema() *catalog.TableSchema {
	return &catalog.TableSchema{
		TableID:   catalog.StModuleID,
		TableName: "st_module",
		Access:    catalog.AccessPrivate,
		TableType: catalog.TableTypeSystem,
		Columns: []catalog.ColumnDef{
			{ColPos: 0, ColName: "program_hash", ColType: catalog.Primitive(catalog.KindString)},
		},
	}
}

func systemTableSchemas() []*catalog.TableSchema {
	return []*catalog.TableSchema{
		stTablesSchema(), stColumnsSchema(), stIndexesSchema(),
		stConstraintsSchema(), stSequencesSchema(), stModuleSchema(),
	}
}

func stTableRow(s *catalog.TableSchema) catalog.AlgebraicValue {
	return catalog.ProductValue(
		catalog.U32Value(s.TableID),
		catalog.StringValue(s.TableName),
		catalog.StringValue(string(s.TableType)),
		catalog.StringValue(string(s.Access)),
	)
}

func stColumnRows(s *catalog.TableSchema) []catalog.AlgebraicValue {
	rows := make([]catalog.AlgebraicValue, len(s.Columns))
	for i, c := range s.Columns {
		rows[i] = catalog.ProductValue(
			catalog.U32Value(s.TableID),
			catalog.U32Value(uint32(c.ColPos)),
			catalog.StringValue(c.ColName),
			catalog.StringValue(string(c.ColType.Kind)),
		)
	}
	return rows
}

func stIndexRows(s *catalog.TableSchema) []catalog.AlgebraicValue {
	rows := make([]catalog.AlgebraicValue, len(s.Indexes))
	for i, idx := range s.Indexes {
		rows[i] = catalog.ProductValue(
			catalog.U32Value(idx.IndexID),
			catalog.U32Value(s.TableID),
			catalog.StringValue(idx.IndexName),
			catalog.BoolValue(idx.IsUnique),
		)
	}
	return rows
}

func stSequenceRows(s *catalog.TableSchema) []catalog.AlgebraicValue {
	rows := make([]catalog.AlgebraicValue, len(s.Sequences))
	for i, sq := range s.Sequences {
		rows[i] = catalog.ProductValue(
			catalog.U32Value(sq.SequenceID),
			catalog.U32Value(s.TableID),
			catalog.U32Value(uint32(sq.ColPos)),
			catalog.I64Value(sq.Increment),
			catalog.I64Value(sq.Start),
			catalog.I64Value(sq.Min),
			catalog.I64Value(sq.Max),
			catalog.I64Value(sq.Allocated),
		)
	}
	return rows
}
