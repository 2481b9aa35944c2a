package query

import (
	"fmt"

	"github.com/cuemby/spacetime/internal/catalog"
)

// OpCode is one instruction of the physical expression stack machine
// (spec.md §4.6): comparisons, boolean combinators, constant/field
// projection, and Concat for building a composite join key.
type OpCode byte

const (
	OpEq OpCode = iota
	OpNe
	OpLt
	OpGt
	OpLte
	OpGte
	OpAnd
	OpOr
	OpConst
	OpPtrProj    // project a field from the single current row
	OpRefProj    // same as PtrProj; kept distinct to mirror the original's
	             // pointer-vs-borrowed-value distinction, collapsed here
	             // since catalog.AlgebraicValue is always a plain value.
	OpTupPtrProj // project a field from the i-th row of a join tuple
	OpTupRefProj
	OpConcat
)

// Instr is one stack-machine instruction. Not every field is meaningful
// for every OpCode; see Eval.
type Instr struct {
	Op       OpCode
	ConstIdx int
	FieldIdx int
	TupleIdx int
	N        int // operand count, Concat only
}

// Expr is a compiled physical expression: a constant pool plus a program
// evaluated as a postfix stack machine. Boolean results are represented as
// catalog.AlgebraicValue{Kind: KindBool} per spec.md §4.6.
type Expr struct {
	Consts []catalog.AlgebraicValue
	Prog   []Instr
}

// Eval runs the program against a single row (TableScan/IxScan tuples) or
// a join tuple (rows), or both when the expression mixes TupProj with
// PtrProj (only meaningful on the outermost Filter above a join).
func (e *Expr) Eval(row catalog.AlgebraicValue, rows []catalog.AlgebraicValue) catalog.AlgebraicValue {
	stack := make([]catalog.AlgebraicValue, 0, 8)
	pop := func() catalog.AlgebraicValue {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v
	}
	for _, ins := range e.Prog {
		switch ins.Op {
		case OpConst:
			stack = append(stack, e.Consts[ins.ConstIdx])
		case OpPtrProj, OpRefProj:
			stack = append(stack, row.Elements[ins.FieldIdx])
		case OpTupPtrProj, OpTupRefProj:
			stack = append(stack, rows[ins.TupleIdx].Elements[ins.FieldIdx])
		case OpEq, OpNe, OpLt, OpGt, OpLte, OpGte:
			b := pop()
			a := pop()
			stack = append(stack, catalog.BoolValue(compareOp(ins.Op, a, b)))
		case OpAnd, OpOr:
			b := pop()
			a := pop()
			var r bool
			if ins.Op == OpAnd {
				r = a.Bool && b.Bool
			} else {
				r = a.Bool || b.Bool
			}
			stack = append(stack, catalog.BoolValue(r))
		case OpConcat:
			elems := make([]catalog.AlgebraicValue, ins.N)
			for i := ins.N - 1; i >= 0; i-- {
				elems[i] = pop()
			}
			stack = append(stack, catalog.ProductValue(elems...))
		default:
			panic(fmt.Sprintf("query: unknown opcode %d", ins.Op))
		}
	}
	if len(stack) != 1 {
		panic(fmt.Sprintf("query: malformed expression program, stack depth %d at end", len(stack)))
	}
	return stack[0]
}

func compareOp(op OpCode, a, b catalog.AlgebraicValue) bool {
	c := a.Compare(b)
	switch op {
	case OpEq:
		return a.Equal(b)
	case OpNe:
		return !a.Equal(b)
	case OpLt:
		return c < 0
	case OpGt:
		return c > 0
	case OpLte:
		return c <= 0
	case OpGte:
		return c >= 0
	default:
		return false
	}
}

// compileExpr lowers a LogicalExpr rooted over a set of aliases into a
// physical Expr. aliasField resolves (alias, column) to a field index
// within the row bound to that alias; tupleIndex resolves an alias to its
// position within a join tuple (or -1 if the expression evaluates over a
// single row, not a tuple).
func compileExpr(e LogicalExpr, aliasField func(alias, column string) int, tupleIndex func(alias string) int) *Expr {
	c := &Expr{}
	c.Prog = compileInto(e, c, aliasField, tupleIndex)
	return c
}

func compileInto(e LogicalExpr, c *Expr, aliasField func(alias, column string) int, tupleIndex func(alias string) int) []Instr {
	switch n := e.(type) {
	case *Literal:
		c.Consts = append(c.Consts, n.Value)
		return []Instr{{Op: OpConst, ConstIdx: len(c.Consts) - 1}}
	case *ColumnRef:
		field := aliasField(n.Alias, n.Column)
		if ti := tupleIndex(n.Alias); ti >= 0 {
			return []Instr{{Op: OpTupPtrProj, TupleIdx: ti, FieldIdx: field}}
		}
		return []Instr{{Op: OpPtrProj, FieldIdx: field}}
	case *Comparison:
		prog := append(compileInto(n.Left, c, aliasField, tupleIndex), compileInto(n.Right, c, aliasField, tupleIndex)...)
		return append(prog, Instr{Op: cmpOpcode(n.Op)})
	case *BoolExpr:
		prog := append(compileInto(n.Left, c, aliasField, tupleIndex), compileInto(n.Right, c, aliasField, tupleIndex)...)
		op := OpAnd
		if n.Op == BoolOr {
			op = OpOr
		}
		return append(prog, Instr{Op: op})
	default:
		panic("query: unknown LogicalExpr node")
	}
}

func cmpOpcode(op CmpOp) OpCode {
	switch op {
	case CmpEq:
		return OpEq
	case CmpNe:
		return OpNe
	case CmpLt:
		return OpLt
	case CmpGt:
		return OpGt
	case CmpLte:
		return OpLte
	default:
		return OpGte
	}
}
