package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_PlainTableScan(t *testing.T) {
	plan, err := Parse("SELECT * FROM player")
	require.NoError(t, err)
	ref, ok := plan.(*TableRef)
	require.True(t, ok)
	assert.Equal(t, "player", ref.TableName)
	assert.Equal(t, "player", ref.Alias)
}

func TestParse_WhereClauseProducesFilter(t *testing.T) {
	plan, err := Parse("SELECT * FROM player WHERE level_num = 5")
	require.NoError(t, err)
	filter, ok := plan.(*LogicalFilter)
	require.True(t, ok)
	cmp, ok := filter.Expr.(*Comparison)
	require.True(t, ok)
	assert.Equal(t, CmpEq, cmp.Op)
	col := cmp.Left.(*ColumnRef)
	assert.Equal(t, "level_num", col.Column)
	lit := cmp.Right.(*Literal)
	assert.Equal(t, int64(5), lit.Value.I64)
}

func TestParse_JoinOnProducesLogicalJoin(t *testing.T) {
	plan, err := Parse("SELECT * FROM player JOIN users u ON player.id = u.id")
	require.NoError(t, err)
	join, ok := plan.(*LogicalJoin)
	require.True(t, ok)
	assert.Equal(t, "id", join.LhsField)
	assert.Equal(t, "id", join.RhsField)
	lhsRef := join.Lhs.(*TableRef)
	assert.Equal(t, "player", lhsRef.TableName)
	rhsRef := join.Rhs.(*TableRef)
	assert.Equal(t, "users", rhsRef.TableName)
}

func TestParse_StringLiteralAndAndConjunction(t *testing.T) {
	plan, err := Parse("SELECT * FROM person WHERE name = 'a' AND age > 3")
	require.NoError(t, err)
	filter := plan.(*LogicalFilter)
	be, ok := filter.Expr.(*BoolExpr)
	require.True(t, ok)
	assert.Equal(t, BoolAnd, be.Op)
}

func TestParse_RejectsUnknownLeadingKeyword(t *testing.T) {
	_, err := Parse("DELETE FROM player")
	assert.Error(t, err)
}
