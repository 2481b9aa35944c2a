package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cuemby/spacetime/internal/catalog"
)

// Parse compiles one subscription query string into a LogicalPlan. The
// grammar is exactly the subset spec.md §6 names: SELECT * FROM a single
// table, optionally aliased, optionally inner-joined to further tables,
// each on an equality, optionally filtered by a conjunction/disjunction of simple
// comparisons. No ecosystem SQL parser in the retrieved pack targets this
// subscription-query subset (they all parse full dialect grammars for
// on-disk engines), so this is a small hand-rolled recursive-descent
// parser over a tokenizer, in the same spirit as internal/bsatn's
// schema-directed codec: a bespoke format with no off-the-shelf library.
func Parse(query string) (LogicalPlan, error) {
	p := &parser{toks: tokenize(query)}
	plan, err := p.parseSelect()
	if err != nil {
		return nil, err
	}
	if !p.atEnd() {
		return nil, fmt.Errorf("query: unexpected trailing input near %q", p.peek())
	}
	return plan, nil
}

type parser struct {
	toks []string
	pos  int
}

func (p *parser) atEnd() bool { return p.pos >= len(p.toks) }

func (p *parser) peek() string {
	if p.atEnd() {
		return ""
	}
	return p.toks[p.pos]
}

func (p *parser) next() string {
	t := p.peek()
	p.pos++
	return t
}

func (p *parser) expectKeyword(kw string) error {
	if !strings.EqualFold(p.peek(), kw) {
		return fmt.Errorf("query: expected %q, got %q", kw, p.peek())
	}
	p.next()
	return nil
}

func (p *parser) parseSelect() (LogicalPlan, error) {
	if err := p.expectKeyword("select"); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("*"); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("from"); err != nil {
		return nil, err
	}
	table := p.next()
	if table == "" {
		return nil, fmt.Errorf("query: expected table name after FROM")
	}
	alias := table
	if strings.EqualFold(p.peek(), "as") {
		p.next()
		alias = p.next()
	} else if !isKeyword(p.peek()) && p.peek() != "" {
		alias = p.next()
	}
	var plan LogicalPlan = &TableRef{TableName: table, Alias: alias}

	for strings.EqualFold(p.peek(), "join") {
		p.next()
		rhsTable := p.next()
		rhsAlias := rhsTable
		if strings.EqualFold(p.peek(), "as") {
			p.next()
			rhsAlias = p.next()
		} else if !isKeyword(p.peek()) && p.peek() != "" {
			rhsAlias = p.next()
		}
		if err := p.expectKeyword("on"); err != nil {
			return nil, err
		}
		lhsAlias, lhsCol, err := p.parseQualifiedColumn()
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("="); err != nil {
			return nil, err
		}
		rhsAliasRef, rhsCol, err := p.parseQualifiedColumn()
		if err != nil {
			return nil, err
		}
		// Orient so LhsField belongs to the existing plan (lhsAlias) and
		// RhsField to the table just joined in (rhsAlias).
		joinLhsField, joinRhsField := lhsCol, rhsCol
		if lhsAlias != Alias(plan) {
			if rhsAliasRef != Alias(plan) {
				return nil, fmt.Errorf("query: JOIN ON must reference the preceding table")
			}
			joinLhsField, joinRhsField = rhsCol, lhsCol
		}
		plan = &LogicalJoin{Lhs: plan, Rhs: &TableRef{TableName: rhsTable, Alias: rhsAlias}, LhsField: joinLhsField, RhsField: joinRhsField, Semi: SemiAll}
	}

	if strings.EqualFold(p.peek(), "where") {
		p.next()
		expr, err := p.parseOrExpr()
		if err != nil {
			return nil, err
		}
		plan = &LogicalFilter{Input: plan, Expr: expr}
	}
	return plan, nil
}

func (p *parser) parseQualifiedColumn() (alias, column string, err error) {
	first := p.next()
	if strings.EqualFold(p.peek(), ".") {
		p.next()
		return first, p.next(), nil
	}
	return "", first, nil
}

func (p *parser) parseOrExpr() (LogicalExpr, error) {
	left, err := p.parseAndExpr()
	if err != nil {
		return nil, err
	}
	for strings.EqualFold(p.peek(), "or") {
		p.next()
		right, err := p.parseAndExpr()
		if err != nil {
			return nil, err
		}
		left = &BoolExpr{Op: BoolOr, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAndExpr() (LogicalExpr, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for strings.EqualFold(p.peek(), "and") {
		p.next()
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = &BoolExpr{Op: BoolAnd, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseComparison() (LogicalExpr, error) {
	alias, col, err := p.parseQualifiedColumn()
	if err != nil {
		return nil, err
	}
	opTok := p.next()
	op, ok := parseCmpOp(opTok)
	if !ok {
		return nil, fmt.Errorf("query: unknown comparison operator %q", opTok)
	}
	litTok := p.next()
	lit, err := parseLiteral(litTok)
	if err != nil {
		return nil, err
	}
	return &Comparison{Op: op, Left: &ColumnRef{Alias: alias, Column: col}, Right: &Literal{Value: lit}}, nil
}

func parseCmpOp(tok string) (CmpOp, bool) {
	switch tok {
	case "=":
		return CmpEq, true
	case "!=", "<>":
		return CmpNe, true
	case "<":
		return CmpLt, true
	case ">":
		return CmpGt, true
	case "<=":
		return CmpLte, true
	case ">=":
		return CmpGte, true
	default:
		return 0, false
	}
}

func parseLiteral(tok string) (catalog.AlgebraicValue, error) {
	if len(tok) >= 2 && tok[0] == '\'' && tok[len(tok)-1] == '\'' {
		return catalog.StringValue(tok[1 : len(tok)-1]), nil
	}
	if strings.EqualFold(tok, "true") {
		return catalog.BoolValue(true), nil
	}
	if strings.EqualFold(tok, "false") {
		return catalog.BoolValue(false), nil
	}
	if n, err := strconv.ParseInt(tok, 10, 64); err == nil {
		return catalog.I64Value(n), nil
	}
	return catalog.AlgebraicValue{}, fmt.Errorf("query: cannot parse literal %q", tok)
}

func isKeyword(tok string) bool {
	switch strings.ToLower(tok) {
	case "where", "join", "on", "and", "or", "as":
		return true
	default:
		return false
	}
}

// tokenize splits query into identifiers, quoted strings, and the handful
// of multi-character operators the subscription grammar uses; it never
// needs to handle nested quoting or comments.
func tokenize(query string) []string {
	var toks []string
	r := []rune(query)
	i := 0
	for i < len(r) {
		c := r[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '\'':
			j := i + 1
			for j < len(r) && r[j] != '\'' {
				j++
			}
			toks = append(toks, string(r[i:j+1]))
			i = j + 1
		case c == '.' || c == '*' || c == ',':
			toks = append(toks, string(c))
			i++
		case c == '<' || c == '>' || c == '!' || c == '=':
			if i+1 < len(r) && r[i+1] == '=' {
				toks = append(toks, string(r[i:i+2]))
				i += 2
			} else {
				toks = append(toks, string(c))
				i++
			}
		default:
			j := i
			for j < len(r) && r[j] != ' ' && r[j] != '\t' && r[j] != '\n' && r[j] != '\r' &&
				r[j] != '.' && r[j] != '*' && r[j] != ',' && r[j] != '<' && r[j] != '>' && r[j] != '!' && r[j] != '=' {
				j++
			}
			toks = append(toks, string(r[i:j]))
			i = j
		}
	}
	return toks
}
