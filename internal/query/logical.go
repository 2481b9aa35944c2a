package query

import "github.com/cuemby/spacetime/internal/catalog"

// Delta selects which slice of a table a TableScan should iterate: the
// committed state, or one transaction's insert/delete set (spec.md §4.6).
type Delta int

const (
	DeltaNone Delta = iota
	DeltaInserts
	DeltaDeletes
)

// Semi controls which side(s) of a join are emitted (spec.md §4.6).
type Semi int

const (
	SemiAll Semi = iota
	SemiLhs
	SemiRhs
)

// LogicalPlan is a pre-physical query tree: table references (by name,
// carrying an alias so RLS can alpha-rename them), left-deep joins, and
// filters. The subscription subset spec.md §6 describes has no need for a
// richer relational algebra (no aggregation, no outer joins, no order-by).
type LogicalPlan interface {
	isLogicalPlan()
}

// TableRef is a leaf referencing a table by name under Alias.
type TableRef struct {
	TableName string
	Alias     string
}

func (*TableRef) isLogicalPlan() {}

// LogicalFilter restricts Input's rows to those for which Expr evaluates
// true.
type LogicalFilter struct {
	Input LogicalPlan
	Expr  LogicalExpr
}

func (*LogicalFilter) isLogicalPlan() {}

// LogicalJoin is a left-deep join: Lhs may itself be a LogicalJoin, Rhs is
// always a leaf-or-filtered leaf in the subscription subset this engine
// supports. LhsField/RhsField name the equi-join columns.
type LogicalJoin struct {
	Lhs, Rhs           LogicalPlan
	LhsField, RhsField string
	Semi               Semi
}

func (*LogicalJoin) isLogicalPlan() {}

// LeftmostLeaf walks Lhs links down to the leftmost TableRef or
// LogicalFilter leaf, used by the RLS resolver to graft a pushed-down
// subtree beneath a view expansion (spec.md §4.7 step 4).
func LeftmostLeaf(p LogicalPlan) LogicalPlan {
	for {
		j, ok := p.(*LogicalJoin)
		if !ok {
			return p
		}
		p = j.Lhs
	}
}

// ReplaceLeftmostLeaf returns a copy of p with its leftmost leaf replaced
// by replacement, preserving every join node above it.
func ReplaceLeftmostLeaf(p LogicalPlan, replacement LogicalPlan) LogicalPlan {
	j, ok := p.(*LogicalJoin)
	if !ok {
		return replacement
	}
	cp := *j
	cp.Lhs = ReplaceLeftmostLeaf(j.Lhs, replacement)
	return &cp
}

// Alias returns the binding name rows produced by p are addressed under:
// a TableRef's own alias, or (for filters/joins) the alias of their
// leftmost leaf.
func Alias(p LogicalPlan) string {
	switch n := p.(type) {
	case *TableRef:
		return n.Alias
	case *LogicalFilter:
		return Alias(n.Input)
	case *LogicalJoin:
		return Alias(n.Lhs)
	default:
		return ""
	}
}

// TableNameOf returns the table a plan ultimately scans (its leftmost leaf's
// TableRef.TableName), used to decide which table a subscription's
// top-level delta applies to.
func TableNameOf(p LogicalPlan) string {
	switch n := p.(type) {
	case *TableRef:
		return n.TableName
	case *LogicalFilter:
		return TableNameOf(n.Input)
	case *LogicalJoin:
		return TableNameOf(n.Lhs)
	default:
		return ""
	}
}

// LogicalExpr is a boolean expression over column references and literals.
type LogicalExpr interface{ isLogicalExpr() }

// ColumnRef names a column of a bound alias.
type ColumnRef struct {
	Alias  string
	Column string
}

func (*ColumnRef) isLogicalExpr() {}

// Literal is a constant value.
type Literal struct {
	Value catalog.AlgebraicValue
}

func (*Literal) isLogicalExpr() {}

// CmpOp is a comparison operator.
type CmpOp int

const (
	CmpEq CmpOp = iota
	CmpNe
	CmpLt
	CmpGt
	CmpLte
	CmpGte
)

// Comparison is a leaf boolean expression comparing two operands.
type Comparison struct {
	Op          CmpOp
	Left, Right LogicalExpr
}

func (*Comparison) isLogicalExpr() {}

// BoolOp is "and"/"or" combining two boolean sub-expressions.
type BoolOp int

const (
	BoolAnd BoolOp = iota
	BoolOr
)

type BoolExpr struct {
	Op          BoolOp
	Left, Right LogicalExpr
}

func (*BoolExpr) isLogicalExpr() {}

// RenameAlias returns a deep copy of p with every occurrence of from
// (as a TableRef.Alias or ColumnRef.Alias) replaced with to. Used by the
// RLS resolver's alpha-renaming step (spec.md §4.7 step 3).
func RenameAlias(p LogicalPlan, from, to string) LogicalPlan {
	switch n := p.(type) {
	case *TableRef:
		cp := *n
		if cp.Alias == from {
			cp.Alias = to
		}
		return &cp
	case *LogicalFilter:
		return &LogicalFilter{Input: RenameAlias(n.Input, from, to), Expr: renameExprAlias(n.Expr, from, to)}
	case *LogicalJoin:
		cp := *n
		cp.Lhs = RenameAlias(n.Lhs, from, to)
		cp.Rhs = RenameAlias(n.Rhs, from, to)
		return &cp
	default:
		return p
	}
}

func renameExprAlias(e LogicalExpr, from, to string) LogicalExpr {
	switch n := e.(type) {
	case *ColumnRef:
		cp := *n
		if cp.Alias == from {
			cp.Alias = to
		}
		return &cp
	case *Comparison:
		return &Comparison{Op: n.Op, Left: renameExprAlias(n.Left, from, to), Right: renameExprAlias(n.Right, from, to)}
	case *BoolExpr:
		return &BoolExpr{Op: n.Op, Left: renameExprAlias(n.Left, from, to), Right: renameExprAlias(n.Right, from, to)}
	default:
		return e
	}
}

// Aliases collects every distinct alias bound within p, used by the RLS
// resolver to pick fresh suffixes that cannot collide with an outer scope.
func Aliases(p LogicalPlan) []string {
	seen := map[string]bool{}
	var out []string
	var walk func(LogicalPlan)
	walk = func(p LogicalPlan) {
		switch n := p.(type) {
		case *TableRef:
			if !seen[n.Alias] {
				seen[n.Alias] = true
				out = append(out, n.Alias)
			}
		case *LogicalFilter:
			walk(n.Input)
		case *LogicalJoin:
			walk(n.Lhs)
			walk(n.Rhs)
		}
	}
	walk(p)
	return out
}
