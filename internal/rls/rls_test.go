package rls_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/spacetime/internal/catalog"
	"github.com/cuemby/spacetime/internal/query"
	"github.com/cuemby/spacetime/internal/rls"
)

type staticRules map[string][]rls.Rule

func (s staticRules) RulesForTable(name string) []rls.Rule { return s[name] }

func TestResolve_OwnerBypassesRLS(t *testing.T) {
	expr := &query.TableRef{TableName: "player", Alias: "player"}
	rules := staticRules{
		"player": {{TableName: "player", Query: &query.TableRef{TableName: "player", Alias: "player"}}},
	}

	out, err := rls.Resolve(expr, true, rules)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Same(t, expr, out[0])
}

func TestResolve_NoRulesReturnsExprUnchanged(t *testing.T) {
	expr := &query.TableRef{TableName: "player", Alias: "player"}

	out, err := rls.Resolve(expr, false, staticRules{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Same(t, expr, out[0])
}

func TestResolve_ExpandsSingleRuleAsJoinWithRenamedAlias(t *testing.T) {
	expr := &query.LogicalFilter{
		Input: &query.TableRef{TableName: "player", Alias: "player"},
		Expr: &query.Comparison{
			Op:    query.CmpGte,
			Left:  &query.ColumnRef{Alias: "player", Column: "level_num"},
			Right: &query.Literal{Value: catalog.I64Value(5)},
		},
	}
	rule := rls.Rule{
		TableName: "player",
		Query: &query.LogicalJoin{
			Lhs:      &query.TableRef{TableName: "player", Alias: "player"},
			Rhs:      &query.TableRef{TableName: "users", Alias: "u"},
			LhsField: "owner_id",
			RhsField: "identity",
			Semi:     query.SemiLhs,
		},
	}
	rules := staticRules{"player": {rule}}

	out, err := rls.Resolve(expr, false, rules)
	require.NoError(t, err)
	require.Len(t, out, 1)

	filter, ok := out[0].(*query.LogicalFilter)
	require.True(t, ok)
	join, ok := filter.Input.(*query.LogicalJoin)
	require.True(t, ok, "expected the player leaf to be replaced by the rule's join, got %T", filter.Input)
	assert.Equal(t, "player", query.Alias(join), "grafted join must still answer to the outer query's alias")

	lhsRef, ok := join.Lhs.(*query.TableRef)
	require.True(t, ok)
	assert.Equal(t, "player", lhsRef.Alias)

	rhsRef, ok := join.Rhs.(*query.TableRef)
	require.True(t, ok)
	assert.NotEqual(t, "u", rhsRef.Alias, "rule-local alias must be alpha-renamed away from its own declaration scope")

	cmp, ok := filter.Expr.(*query.Comparison)
	require.True(t, ok)
	col, ok := cmp.Left.(*query.ColumnRef)
	require.True(t, ok)
	assert.Equal(t, "player", col.Alias, "outer filter predicate must still resolve against the player alias")
}

func TestResolve_MultipleRulesFanOutToOneAlternativeEach(t *testing.T) {
	expr := &query.TableRef{TableName: "player", Alias: "player"}
	ownRows := rls.Rule{TableName: "player", Query: &query.TableRef{TableName: "player", Alias: "player"}}
	guildmates := rls.Rule{
		TableName: "player",
		Query: &query.LogicalJoin{
			Lhs:      &query.TableRef{TableName: "player", Alias: "player"},
			Rhs:      &query.TableRef{TableName: "guild", Alias: "g"},
			LhsField: "guild_id",
			RhsField: "id",
			Semi:     query.SemiLhs,
		},
	}
	rules := staticRules{"player": {ownRows, guildmates}}

	out, err := rls.Resolve(expr, false, rules)
	require.NoError(t, err)
	assert.Len(t, out, 2, "a subscription evaluates the union of every matching rule's alternative")
}

func TestResolve_CyclicRuleChainIsRejected(t *testing.T) {
	rules := staticRules{
		"a": {{TableName: "a", Query: &query.TableRef{TableName: "b", Alias: "a"}}},
		"b": {{TableName: "b", Query: &query.TableRef{TableName: "a", Alias: "b"}}},
	}

	expr := &query.TableRef{TableName: "a", Alias: "a"}
	_, err := rls.Resolve(expr, false, rules)
	require.Error(t, err)
	var cycleErr *rls.CycleError
	require.ErrorAs(t, err, &cycleErr)
}
