package query

import (
	"fmt"

	"github.com/cuemby/spacetime/internal/catalog"
)

// Catalog is the schema lookup the planner needs; satisfied by
// *datastore.ReadTx.
type Catalog interface {
	SchemaByName(name string) (*catalog.TableSchema, error)
}

// Lower compiles a LogicalPlan into a PhysicalPlan, choosing an IxScan over
// a Filter+TableScan wherever the filtered column is indexed, and an
// IxJoin over a HashJoin wherever the join's rhs table has a matching
// index (spec.md §4.6). delta marks which table (the one bound to the
// tree's outermost alias) should scan its transaction delta instead of
// committed state; every other table referenced via a join always reads
// committed state, since this port's index reads don't see uncommitted
// deltas.
func Lower(p LogicalPlan, delta Delta, cat Catalog) (PhysicalPlan, error) {
	aliasSchema := map[string]*catalog.TableSchema{}
	if err := collectSchemas(p, cat, aliasSchema); err != nil {
		return nil, err
	}
	order := Aliases(p)
	topAlias := Alias(p)

	tupleIdx := func(alias string) int {
		if len(order) <= 1 {
			return -1
		}
		for i, a := range order {
			if a == alias {
				return i
			}
		}
		return -1
	}
	fieldIdx := func(alias, column string) int {
		schema := aliasSchema[alias]
		col, _ := schema.ColumnByName(column)
		return col.ColPos
	}
	return lowerNode(p, delta, topAlias, aliasSchema, fieldIdx, tupleIdx)
}

func collectSchemas(p LogicalPlan, cat Catalog, out map[string]*catalog.TableSchema) error {
	switch n := p.(type) {
	case *TableRef:
		schema, err := cat.SchemaByName(n.TableName)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		out[n.Alias] = schema
		return nil
	case *LogicalFilter:
		return collectSchemas(n.Input, cat, out)
	case *LogicalJoin:
		if err := collectSchemas(n.Lhs, cat, out); err != nil {
			return err
		}
		return collectSchemas(n.Rhs, cat, out)
	default:
		return fmt.Errorf("query: unknown LogicalPlan node")
	}
}

func lowerNode(p LogicalPlan, delta Delta, topAlias string, aliasSchema map[string]*catalog.TableSchema,
	fieldIdx func(alias, column string) int, tupleIdx func(alias string) int) (PhysicalPlan, error) {
	switch n := p.(type) {
	case *TableRef:
		schema := aliasSchema[n.Alias]
		d := DeltaNone
		if n.Alias == topAlias {
			d = delta
		}
		return &TableScan{TableID: schema.TableID, TableName: schema.TableName, Delta: d}, nil

	case *LogicalFilter:
		if ref, ok := n.Input.(*TableRef); ok {
			schema := aliasSchema[ref.Alias]
			isTop := ref.Alias == topAlias
			if !isTop || delta == DeltaNone {
				if scan, ok := tryIxScan(n.Expr, schema, fieldIdx); ok {
					return scan, nil
				}
			}
		}
		input, err := lowerNode(n.Input, delta, topAlias, aliasSchema, fieldIdx, tupleIdx)
		if err != nil {
			return nil, err
		}
		return &Filter{Input: input, Expr: compileExpr(n.Expr, fieldIdx, tupleIdx)}, nil

	case *LogicalJoin:
		lhs, err := lowerNode(n.Lhs, delta, topAlias, aliasSchema, fieldIdx, tupleIdx)
		if err != nil {
			return nil, err
		}
		rhs, err := lowerNode(n.Rhs, delta, topAlias, aliasSchema, fieldIdx, tupleIdx)
		if err != nil {
			return nil, err
		}
		rhsRef, rhsIsPlainTable := n.Rhs.(*TableRef)
		if rhsIsPlainTable {
			rhsSchema := aliasSchema[rhsRef.Alias]
			if idx, unique, ok := findSingleColIndex(rhsSchema, n.RhsField); ok {
				return &IxJoin{
					Lhs:          lhs,
					RhsTableID:   rhsSchema.TableID,
					RhsTableName: rhsSchema.TableName,
					RhsIndexID:   idx,
					RhsField:     fieldIdx(rhsRef.Alias, n.RhsField),
					LhsField:     fieldIdx(lhsAlias(n.Lhs), n.LhsField),
					Unique:       unique,
					Semi:         n.Semi,
				}, nil
			}
		}
		return &HashJoin{
			Lhs:      lhs,
			Rhs:      rhs,
			LhsField: fieldIdx(lhsAlias(n.Lhs), n.LhsField),
			RhsField: fieldIdx(Alias(n.Rhs), n.RhsField),
			Unique:   false,
			Semi:     n.Semi,
		}, nil

	default:
		return nil, fmt.Errorf("query: unknown LogicalPlan node")
	}
}

func lhsAlias(p LogicalPlan) string { return Alias(p) }

// tryIxScan lowers a Filter directly into an IxScan when expr is a single
// comparison (equality or range) against an indexed column of schema.
func tryIxScan(expr LogicalExpr, schema *catalog.TableSchema, fieldIdx func(alias, column string) int) (*IxScan, bool) {
	cmp, ok := expr.(*Comparison)
	if !ok {
		return nil, false
	}
	col, lit, reversed, ok := splitColumnLiteral(cmp)
	if !ok {
		return nil, false
	}
	pos, found := schema.ColumnByName(col.Column)
	if !found {
		return nil, false
	}
	idxID, _, ok := findSingleColIndex(schema, col.Column)
	if !ok {
		return nil, false
	}
	op := cmp.Op
	if reversed {
		op = reverseCmp(op)
	}
	scan := &IxScan{TableID: schema.TableID, TableName: schema.TableName, IndexID: idxID}
	switch op {
	case CmpEq:
		scan.Arg = IxScanArg{IsRange: false, EqValue: lit.Value}
	case CmpLt:
		v := lit.Value
		scan.Arg = IxScanArg{IsRange: true, Upper: &v, UpperIncl: false}
	case CmpLte:
		v := lit.Value
		scan.Arg = IxScanArg{IsRange: true, Upper: &v, UpperIncl: true}
	case CmpGt:
		v := lit.Value
		scan.Arg = IxScanArg{IsRange: true, Lower: &v, LowerIncl: false}
	case CmpGte:
		v := lit.Value
		scan.Arg = IxScanArg{IsRange: true, Lower: &v, LowerIncl: true}
	default:
		return nil, false
	}
	_ = pos
	return scan, true
}

func splitColumnLiteral(cmp *Comparison) (*ColumnRef, *Literal, bool, bool) {
	if col, ok := cmp.Left.(*ColumnRef); ok {
		if lit, ok := cmp.Right.(*Literal); ok {
			return col, lit, false, true
		}
	}
	if col, ok := cmp.Right.(*ColumnRef); ok {
		if lit, ok := cmp.Left.(*Literal); ok {
			return col, lit, true, true
		}
	}
	return nil, nil, false, false
}

func reverseCmp(op CmpOp) CmpOp {
	switch op {
	case CmpLt:
		return CmpGt
	case CmpGt:
		return CmpLt
	case CmpLte:
		return CmpGte
	case CmpGte:
		return CmpLte
	default:
		return op
	}
}

// findSingleColIndex returns the first index of schema keyed solely on
// column, and whether it's unique.
func findSingleColIndex(schema *catalog.TableSchema, column string) (uint32, bool, bool) {
	pos, ok := schema.ColumnByName(column)
	if !ok {
		return 0, false, false
	}
	for _, idx := range schema.Indexes {
		if len(idx.Columns) == 1 && idx.Columns[0] == pos.ColPos {
			return idx.IndexID, idx.IsUnique, true
		}
	}
	return 0, false, false
}
